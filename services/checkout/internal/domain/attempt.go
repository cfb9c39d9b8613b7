package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome — результат попытки оплаты.
type AttemptOutcome string

const (
	OutcomePending    AttemptOutcome = "pending"
	OutcomeVerified   AttemptOutcome = "verified"
	OutcomeFailed     AttemptOutcome = "failed"
	OutcomeSuperseded AttemptOutcome = "superseded" // заменена более новой попыткой
)

// VerificationChannel — путь, по которому пришло подтверждение.
type VerificationChannel string

const (
	ChannelClientCallback VerificationChannel = "client_callback"
	ChannelWebhook        VerificationChannel = "webhook"
)

// PaymentAttempt — одна транзакция в платёжном шлюзе для заказа.
type PaymentAttempt struct {
	ID               string
	OrderID          string
	AttemptNumber    int
	GatewayOrderID   string
	GatewayPaymentID *string
	IdempotencyKey   string
	Amount           int64
	Currency         string
	Outcome          AttemptOutcome
	VerifiedVia      *VerificationChannel
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPaymentAttempt создаёт попытку в статусе pending.
func NewPaymentAttempt(orderID string, number int, gatewayOrderID, idempotencyKey string, amount int64, currency string, now time.Time) *PaymentAttempt {
	now = now.UTC()
	return &PaymentAttempt{
		ID:             uuid.New().String(),
		OrderID:        orderID,
		AttemptNumber:  number,
		GatewayOrderID: gatewayOrderID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Currency:       currency,
		Outcome:        OutcomePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsPending — попытка ещё не получила результата.
func (a *PaymentAttempt) IsPending() bool {
	return a.Outcome == OutcomePending
}

// MarkVerified фиксирует подтверждённую оплату.
func (a *PaymentAttempt) MarkVerified(paymentID string, via VerificationChannel, now time.Time) error {
	if a.Outcome != OutcomePending {
		return fmt.Errorf("%w: попытка %s в статусе %s", ErrIllegalTransition, a.ID, a.Outcome)
	}
	a.Outcome = OutcomeVerified
	a.GatewayPaymentID = &paymentID
	a.VerifiedVia = &via
	a.UpdatedAt = now.UTC()
	return nil
}

// MarkFailed фиксирует неуспешную оплату.
func (a *PaymentAttempt) MarkFailed(reason string, now time.Time) error {
	if a.Outcome != OutcomePending {
		return fmt.Errorf("%w: попытка %s в статусе %s", ErrIllegalTransition, a.ID, a.Outcome)
	}
	a.Outcome = OutcomeFailed
	a.FailureReason = &reason
	a.UpdatedAt = now.UTC()
	return nil
}

// MarkSuperseded закрывает незавершённую попытку. Для завершённых ничего не делает.
func (a *PaymentAttempt) MarkSuperseded(now time.Time) {
	if a.Outcome != OutcomePending {
		return
	}
	a.Outcome = OutcomeSuperseded
	a.UpdatedAt = now.UTC()
}

// RecordPaymentID запоминает payment_id шлюза, если он ещё не известен.
func (a *PaymentAttempt) RecordPaymentID(paymentID string, now time.Time) {
	if a.GatewayPaymentID != nil || paymentID == "" {
		return
	}
	a.GatewayPaymentID = &paymentID
	a.UpdatedAt = now.UTC()
}
