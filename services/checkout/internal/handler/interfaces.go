// Package handler содержит HTTP обработчики REST API checkout-сервиса.
package handler

import (
	"context"
	"time"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/service"
)

// CheckoutService — сценарии покупателя. Реализуется *service.CheckoutService.
type CheckoutService interface {
	Quote(ctx context.Context, userID string, couponCode *string) (domain.PricingResult, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error)
	OpenPayment(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error)
	RetryPayment(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error)
	Cancel(ctx context.Context, userID, orderID string) (*domain.Order, error)
	Fulfill(ctx context.Context, orderID string) (*domain.Order, error)
}

// PaymentVerifier — приём подтверждений оплаты. Реализуется *service.PaymentVerifier.
type PaymentVerifier interface {
	VerifyClientCallback(ctx context.Context, cb service.ClientCallback) (*service.VerificationResult, error)
	HandleWebhook(ctx context.Context, ev service.WebhookEvent) (*service.VerificationResult, error)
}

// ReviewStore — очередь ручной сверки. Реализуется *repository.ReviewRepository.
type ReviewStore interface {
	ListOpen(ctx context.Context, limit int) ([]*domain.PaymentReview, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}
