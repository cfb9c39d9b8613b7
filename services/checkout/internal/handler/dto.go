package handler

import (
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/service"
)

// === Request DTOs ===

// QuoteRequest — запрос расчёта стоимости корзины.
type QuoteRequest struct {
	CouponCode *string `json:"coupon_code"`
}

// CreateOrderRequest — запрос на оформление заказа.
type CreateOrderRequest struct {
	CouponCode    *string `json:"coupon_code"`
	PaymentMethod string  `json:"payment_method" binding:"required,max=32"`
}

// VerifyPaymentRequest — client callback после оплаты в виджете шлюза.
type VerifyPaymentRequest struct {
	AttemptID        string `json:"attempt_id"`
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// === Response DTOs ===

// PaymentResponse — параметры для открытия виджета шлюза на клиенте.
// Amount в минорных единицах, как его ожидает виджет.
type PaymentResponse struct {
	AttemptID      string `json:"attempt_id"`
	AttemptNumber  int    `json:"attempt_number"`
	GatewayOrderID string `json:"gateway_order_id"`
	GatewayKeyID   string `json:"gateway_key_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// AttemptResponse — попытка оплаты в ответе.
type AttemptResponse struct {
	ID               string  `json:"id"`
	AttemptNumber    int     `json:"attempt_number"`
	GatewayOrderID   string  `json:"gateway_order_id"`
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty"`
	Amount           int64   `json:"amount"`
	Outcome          string  `json:"outcome"`
	VerifiedVia      *string `json:"verified_via,omitempty"`
	FailureReason    *string `json:"failure_reason,omitempty"`
	CreatedAt        int64   `json:"created_at"`
}

// OrderResponse — заказ в ответе.
type OrderResponse struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	Status        string               `json:"status"`
	Currency      string               `json:"currency"`
	PaymentMethod string               `json:"payment_method"`
	Items         []domain.LineItem    `json:"items"`
	Pricing       domain.PricingResult `json:"pricing"`
	Attempts      []AttemptResponse    `json:"attempts"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     int64                `json:"created_at"`
	UpdatedAt     int64                `json:"updated_at"`
}

// CheckoutResponse — ответ на оформление заказа.
// Payment отсутствует, если шлюз был недоступен: оплату можно открыть позже.
type CheckoutResponse struct {
	Order   OrderResponse    `json:"order"`
	Payment *PaymentResponse `json:"payment,omitempty"`
}

// VerifyPaymentResponse — результат подтверждения оплаты.
type VerifyPaymentResponse struct {
	OrderID         string `json:"order_id"`
	AttemptID       string `json:"attempt_id"`
	OrderStatus     string `json:"order_status"`
	AttemptOutcome  string `json:"attempt_outcome"`
	AlreadyVerified bool   `json:"already_verified"`
	Superseded      bool   `json:"superseded"`
}

// ReviewResponse — запись ручной сверки.
type ReviewResponse struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	AttemptID        string `json:"attempt_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Reason           string `json:"reason"`
	Channel          string `json:"channel"`
	ExpectedAmount   int64  `json:"expected_amount"`
	ReportedAmount   *int64 `json:"reported_amount,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// === Конвертеры ===

func orderToResponse(o *domain.Order) OrderResponse {
	attempts := make([]AttemptResponse, len(o.Attempts))
	for i, a := range o.Attempts {
		attempts[i] = attemptToResponse(a)
	}

	return OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		Currency:      o.Currency,
		PaymentMethod: o.PaymentMethod,
		Items:         o.Cart.Items,
		Pricing:       o.Pricing,
		Attempts:      attempts,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt.Unix(),
		UpdatedAt:     o.UpdatedAt.Unix(),
	}
}

func attemptToResponse(a *domain.PaymentAttempt) AttemptResponse {
	r := AttemptResponse{
		ID:               a.ID,
		AttemptNumber:    a.AttemptNumber,
		GatewayOrderID:   a.GatewayOrderID,
		GatewayPaymentID: a.GatewayPaymentID,
		Amount:           a.Amount,
		Outcome:          string(a.Outcome),
		FailureReason:    a.FailureReason,
		CreatedAt:        a.CreatedAt.Unix(),
	}
	if a.VerifiedVia != nil {
		via := string(*a.VerifiedVia)
		r.VerifiedVia = &via
	}
	return r
}

func paymentToResponse(a *domain.PaymentAttempt, keyID string) *PaymentResponse {
	return &PaymentResponse{
		AttemptID:      a.ID,
		AttemptNumber:  a.AttemptNumber,
		GatewayOrderID: a.GatewayOrderID,
		GatewayKeyID:   keyID,
		Amount:         paymentgw.ToMinorUnits(a.Amount),
		Currency:       a.Currency,
	}
}

func verificationToResponse(r *service.VerificationResult) VerifyPaymentResponse {
	return VerifyPaymentResponse{
		OrderID:         r.OrderID,
		AttemptID:       r.AttemptID,
		OrderStatus:     string(r.OrderStatus),
		AttemptOutcome:  string(r.AttemptOutcome),
		AlreadyVerified: r.AlreadyVerified,
		Superseded:      r.Superseded,
	}
}

func reviewToResponse(r *domain.PaymentReview) ReviewResponse {
	return ReviewResponse{
		ID:               r.ID,
		OrderID:          r.OrderID,
		AttemptID:        r.AttemptID,
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		Reason:           string(r.Reason),
		Channel:          string(r.Channel),
		ExpectedAmount:   r.ExpectedAmount,
		ReportedAmount:   r.ReportedAmount,
		CreatedAt:        r.CreatedAt.Unix(),
	}
}
