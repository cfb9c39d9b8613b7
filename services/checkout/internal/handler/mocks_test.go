package handler

import (
	"context"
	"time"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/service"
)

// MockCheckoutService — мок для CheckoutService.
type MockCheckoutService struct {
	QuoteFunc        func(ctx context.Context, userID string, couponCode *string) (domain.PricingResult, error)
	CheckoutFunc     func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	GetOrderFunc     func(ctx context.Context, userID, orderID string) (*domain.Order, error)
	OpenPaymentFunc  func(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error)
	RetryPaymentFunc func(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error)
	CancelFunc       func(ctx context.Context, userID, orderID string) (*domain.Order, error)
	FulfillFunc      func(ctx context.Context, orderID string) (*domain.Order, error)
}

func (m *MockCheckoutService) Quote(ctx context.Context, userID string, couponCode *string) (domain.PricingResult, error) {
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, userID, couponCode)
	}
	return domain.PricingResult{}, nil
}

func (m *MockCheckoutService) Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockCheckoutService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, userID, orderID)
	}
	return nil, nil
}

func (m *MockCheckoutService) OpenPayment(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error) {
	if m.OpenPaymentFunc != nil {
		return m.OpenPaymentFunc(ctx, userID, orderID)
	}
	return nil, nil
}

func (m *MockCheckoutService) RetryPayment(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error) {
	if m.RetryPaymentFunc != nil {
		return m.RetryPaymentFunc(ctx, userID, orderID)
	}
	return nil, nil
}

func (m *MockCheckoutService) Cancel(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID, orderID)
	}
	return nil, nil
}

func (m *MockCheckoutService) Fulfill(ctx context.Context, orderID string) (*domain.Order, error) {
	if m.FulfillFunc != nil {
		return m.FulfillFunc(ctx, orderID)
	}
	return nil, nil
}

// MockPaymentVerifier — мок для PaymentVerifier.
type MockPaymentVerifier struct {
	VerifyClientCallbackFunc func(ctx context.Context, cb service.ClientCallback) (*service.VerificationResult, error)
	HandleWebhookFunc        func(ctx context.Context, ev service.WebhookEvent) (*service.VerificationResult, error)
}

func (m *MockPaymentVerifier) VerifyClientCallback(ctx context.Context, cb service.ClientCallback) (*service.VerificationResult, error) {
	if m.VerifyClientCallbackFunc != nil {
		return m.VerifyClientCallbackFunc(ctx, cb)
	}
	return nil, nil
}

func (m *MockPaymentVerifier) HandleWebhook(ctx context.Context, ev service.WebhookEvent) (*service.VerificationResult, error) {
	if m.HandleWebhookFunc != nil {
		return m.HandleWebhookFunc(ctx, ev)
	}
	return nil, nil
}

// MockReviewStore — мок для ReviewStore.
type MockReviewStore struct {
	ListOpenFunc func(ctx context.Context, limit int) ([]*domain.PaymentReview, error)
	ResolveFunc  func(ctx context.Context, id string, at time.Time) error
}

func (m *MockReviewStore) ListOpen(ctx context.Context, limit int) ([]*domain.PaymentReview, error) {
	if m.ListOpenFunc != nil {
		return m.ListOpenFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockReviewStore) Resolve(ctx context.Context, id string, at time.Time) error {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, id, at)
	}
	return nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testOrder — заказ на 1044 в статусе status.
func testOrder(status domain.OrderStatus) *domain.Order {
	code := "SAVE10"
	return &domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Cart: domain.CartSnapshot{
			Currency: "INR",
			Items: []domain.LineItem{
				{LineItemID: "li-1", ProductID: "p-1", Name: "Кроссовки", UnitPrice: 1200, Quantity: 1},
			},
		},
		Pricing: domain.PricingResult{
			OriginalSubtotal:     1200,
			DiscountedSubtotal:   1160,
			CouponCode:           &code,
			CouponDiscountAmount: 116,
			IsFreeShipping:       true,
			GrandTotal:           1044,
		},
		PaymentMethod: "card",
		Currency:      "INR",
		Status:        status,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

func testAttempt(number int) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		ID:             "attempt-1",
		OrderID:        "order-1",
		AttemptNumber:  number,
		GatewayOrderID: "gw_1",
		Amount:         1044,
		Currency:       "INR",
		Outcome:        domain.OutcomePending,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}
