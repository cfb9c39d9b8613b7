package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus — статус заказа.
type OrderStatus string

const (
	// OrderStatusCreated — заказ создан, сумма зафиксирована, транзакция в шлюзе не открыта.
	OrderStatusCreated OrderStatus = "created"

	// OrderStatusPaymentPending — транзакция открыта, ждём подтверждения оплаты.
	OrderStatusPaymentPending OrderStatus = "payment_pending"

	// OrderStatusPaid — оплата подтверждена.
	OrderStatusPaid OrderStatus = "paid"

	// OrderStatusFailed — оплата не прошла или истёк срок ожидания. Можно повторить.
	OrderStatusFailed OrderStatus = "failed"

	// OrderStatusCancelled — заказ отменён. Можно повторить оплату.
	OrderStatusCancelled OrderStatus = "cancelled"

	// OrderStatusFulfilled — заказ передан в доставку.
	OrderStatusFulfilled OrderStatus = "fulfilled"
)

// IsRetryable — из статуса можно открыть новую попытку оплаты.
func (s OrderStatus) IsRetryable() bool {
	return s == OrderStatusFailed || s == OrderStatusCancelled
}

// OrderEvent — событие, переводящее заказ в другой статус.
type OrderEvent string

const (
	EventOpenPayment      OrderEvent = "open_payment"
	EventRetryPayment     OrderEvent = "retry_payment"
	EventPaymentConfirmed OrderEvent = "payment_confirmed"
	EventPaymentFailed    OrderEvent = "payment_failed"
	EventCancel           OrderEvent = "cancel"
	EventFulfill          OrderEvent = "fulfill"
)

// =============================================================================
// Допустимые переходы состояний (State Machine)
// =============================================================================

// allowedTransitions: статус → событие → новый статус.
// paid и fulfilled не принимают событий оплаты.
var allowedTransitions = map[OrderStatus]map[OrderEvent]OrderStatus{
	OrderStatusCreated: {
		EventOpenPayment: OrderStatusPaymentPending,
		EventCancel:      OrderStatusCancelled,
	},
	OrderStatusPaymentPending: {
		EventPaymentConfirmed: OrderStatusPaid,
		EventPaymentFailed:    OrderStatusFailed,
		EventCancel:           OrderStatusCancelled,
	},
	OrderStatusFailed: {
		EventRetryPayment: OrderStatusPaymentPending,
	},
	OrderStatusCancelled: {
		EventRetryPayment: OrderStatusPaymentPending,
	},
	OrderStatusPaid: {
		EventFulfill: OrderStatusFulfilled,
	},
}

// NextStatus возвращает статус после события или ErrIllegalTransition.
func NextStatus(from OrderStatus, event OrderEvent) (OrderStatus, error) {
	to, ok := allowedTransitions[from][event]
	if !ok {
		return from, fmt.Errorf("%w: %s в статусе %s", ErrIllegalTransition, event, from)
	}
	return to, nil
}

// =============================================================================
// Order — доменная сущность
// =============================================================================

// Order — заказ. Владеет списком попыток оплаты.
// Pricing.GrandTotal фиксируется при создании и больше не пересчитывается.
type Order struct {
	ID            string
	UserID        string
	Cart          CartSnapshot
	Pricing       PricingResult
	PaymentMethod string
	Currency      string
	Status        OrderStatus
	Attempts      []*PaymentAttempt // по возрастанию AttemptNumber
	Version       int64             // для compare-and-swap при сохранении
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// StatusChangedAt меняется только при переходе статуса.
	// От него считается срок ожидания оплаты.
	StatusChangedAt time.Time
}

// NewOrder создаёт заказ в статусе created с зафиксированной суммой.
func NewOrder(userID string, cart CartSnapshot, pricing PricingResult, paymentMethod string, now time.Time) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	if err := cart.Validate(); err != nil {
		return nil, err
	}
	if pricing.GrandTotal < 0 {
		return nil, fmt.Errorf("%w: отрицательная сумма заказа", ErrInvalidCart)
	}

	now = now.UTC()
	return &Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Cart:          cart,
		Pricing:       pricing,
		PaymentMethod: paymentMethod,
		Currency:      cart.Currency,
		Status:          OrderStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}, nil
}

// GrandTotal — зафиксированная сумма к оплате.
func (o *Order) GrandTotal() int64 {
	return o.Pricing.GrandTotal
}

// IsOwnedBy проверяет владельца заказа.
func (o *Order) IsOwnedBy(userID string) bool {
	return o.UserID == userID
}

// CanApply проверяет, допустимо ли событие в текущем статусе.
func (o *Order) CanApply(event OrderEvent) bool {
	_, err := NextStatus(o.Status, event)
	return err == nil
}

// Apply переводит заказ по событию.
// При недопустимом событии заказ не меняется.
func (o *Order) Apply(event OrderEvent, now time.Time) error {
	to, err := NextStatus(o.Status, event)
	if err != nil {
		return err
	}

	o.Status = to
	o.UpdatedAt = now.UTC()
	o.StatusChangedAt = o.UpdatedAt
	if event == EventRetryPayment {
		o.FailureReason = nil
	}
	return nil
}

// Fail переводит заказ в failed с причиной.
func (o *Order) Fail(reason string, now time.Time) error {
	if err := o.Apply(EventPaymentFailed, now); err != nil {
		return err
	}
	o.FailureReason = &reason
	return nil
}

// NextAttemptNumber — номер следующей попытки оплаты.
func (o *Order) NextAttemptNumber() int {
	return len(o.Attempts) + 1
}

// ActiveAttempt возвращает последнюю попытку или nil.
// Только она может перевести заказ в paid.
func (o *Order) ActiveAttempt() *PaymentAttempt {
	if len(o.Attempts) == 0 {
		return nil
	}
	return o.Attempts[len(o.Attempts)-1]
}

// AttemptByGatewayOrderID ищет попытку по идентификатору заказа в шлюзе.
func (o *Order) AttemptByGatewayOrderID(gatewayOrderID string) *PaymentAttempt {
	for _, a := range o.Attempts {
		if a.GatewayOrderID == gatewayOrderID {
			return a
		}
	}
	return nil
}

// AttemptByID ищет попытку по внутреннему идентификатору.
func (o *Order) AttemptByID(id string) *PaymentAttempt {
	for _, a := range o.Attempts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// VerifiedAttempt возвращает подтверждённую попытку или nil.
func (o *Order) VerifiedAttempt() *PaymentAttempt {
	for _, a := range o.Attempts {
		if a.Outcome == OutcomeVerified {
			return a
		}
	}
	return nil
}

// AddAttempt добавляет новую попытку оплаты.
// Сумма попытки обязана совпадать с зафиксированной суммой заказа.
// Предыдущие незавершённые попытки становятся superseded.
func (o *Order) AddAttempt(a *PaymentAttempt, now time.Time) error {
	if a.OrderID != o.ID {
		return fmt.Errorf("%w: попытка относится к заказу %s", ErrInvalidAttempt, a.OrderID)
	}
	if a.Amount != o.GrandTotal() {
		return fmt.Errorf("%w: сумма попытки %d, сумма заказа %d", ErrInvalidAttempt, a.Amount, o.GrandTotal())
	}
	if a.AttemptNumber != o.NextAttemptNumber() {
		return fmt.Errorf("%w: номер попытки %d, ожидался %d", ErrInvalidAttempt, a.AttemptNumber, o.NextAttemptNumber())
	}
	if o.VerifiedAttempt() != nil {
		return ErrNotRetryable
	}

	for _, prev := range o.Attempts {
		if prev.Outcome == OutcomePending {
			prev.MarkSuperseded(now)
		}
	}

	o.Attempts = append(o.Attempts, a)
	o.UpdatedAt = now.UTC()
	return nil
}
