package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события заказа в Kafka.
type EventType string

const (
	EventTypePaymentPending EventType = "order.payment_pending"
	EventTypePaid           EventType = "order.paid"
	EventTypePaymentFailed  EventType = "order.payment_failed"
	EventTypeCancelled      EventType = "order.cancelled"
	EventTypeFulfilled      EventType = "order.fulfilled"
	EventTypeReviewRequired EventType = "payment.review_required"
)

// eventTypes — событие для сервиса уведомлений после перехода.
var eventTypes = map[OrderEvent]EventType{
	EventOpenPayment:      EventTypePaymentPending,
	EventRetryPayment:     EventTypePaymentPending,
	EventPaymentConfirmed: EventTypePaid,
	EventPaymentFailed:    EventTypePaymentFailed,
	EventCancel:           EventTypeCancelled,
	EventFulfill:          EventTypeFulfilled,
}

// Event — сообщение о заказе. Пишется в outbox в транзакции изменения заказа.
type Event struct {
	ID               string      `json:"event_id"`
	Type             EventType   `json:"event_type"`
	OrderID          string      `json:"order_id"`
	UserID           string      `json:"user_id"`
	Status           OrderStatus `json:"status"`
	GrandTotal       int64       `json:"grand_total"`
	Currency         string      `json:"currency"`
	AttemptID        string      `json:"attempt_id,omitempty"`
	GatewayOrderID   string      `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string      `json:"gateway_payment_id,omitempty"`
	Reason           string      `json:"reason,omitempty"`
	OccurredAt       time.Time   `json:"occurred_at"`
}

// NewTransitionEvent строит событие по применённому переходу заказа.
// attempt может быть nil.
func NewTransitionEvent(event OrderEvent, o *Order, attempt *PaymentAttempt, now time.Time) Event {
	e := newEvent(eventTypes[event], o, attempt, now)
	if o.FailureReason != nil {
		e.Reason = *o.FailureReason
	}
	return e
}

// NewReviewEvent строит событие о платеже, требующем ручного разбора.
func NewReviewEvent(o *Order, attempt *PaymentAttempt, review *PaymentReview, now time.Time) Event {
	e := newEvent(EventTypeReviewRequired, o, attempt, now)
	e.Reason = string(review.Reason)
	if review.GatewayPaymentID != "" {
		e.GatewayPaymentID = review.GatewayPaymentID
	}
	return e
}

func newEvent(t EventType, o *Order, attempt *PaymentAttempt, now time.Time) Event {
	e := Event{
		ID:         uuid.New().String(),
		Type:       t,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		GrandTotal: o.GrandTotal(),
		Currency:   o.Currency,
		OccurredAt: now.UTC(),
	}
	if attempt != nil {
		e.AttemptID = attempt.ID
		e.GatewayOrderID = attempt.GatewayOrderID
		if attempt.GatewayPaymentID != nil {
			e.GatewayPaymentID = *attempt.GatewayPaymentID
		}
	}
	return e
}
