package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReviewReason — причина ручного разбора платежа.
type ReviewReason string

const (
	// ReviewAmountMismatch — шлюз сообщил сумму, отличную от суммы заказа.
	ReviewAmountMismatch ReviewReason = "amount_mismatch"

	// ReviewStaleAttemptCaptured — списание по устаревшей попытке, возможна двойная оплата.
	ReviewStaleAttemptCaptured ReviewReason = "stale_attempt_captured"

	// ReviewCapturedOnClosedOrder — списание по заказу в статусе failed или cancelled.
	ReviewCapturedOnClosedOrder ReviewReason = "captured_on_closed_order"
)

// PaymentReview — запись для ручной сверки платежа.
type PaymentReview struct {
	ID               string
	OrderID          string
	AttemptID        string
	GatewayOrderID   string
	GatewayPaymentID string
	Reason           ReviewReason
	Channel          VerificationChannel
	ExpectedAmount   int64
	ReportedAmount   *int64
	CreatedAt        time.Time
}

// NewPaymentReview создаёт запись для ручной сверки.
func NewPaymentReview(o *Order, a *PaymentAttempt, paymentID string, reason ReviewReason, channel VerificationChannel, reported *int64, now time.Time) *PaymentReview {
	return &PaymentReview{
		ID:               uuid.New().String(),
		OrderID:          o.ID,
		AttemptID:        a.ID,
		GatewayOrderID:   a.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Reason:           reason,
		Channel:          channel,
		ExpectedAmount:   o.GrandTotal(),
		ReportedAmount:   reported,
		CreatedAt:        now.UTC(),
	}
}
