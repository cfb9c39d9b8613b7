package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// idempotencyNamespace — пространство имён UUIDv5 для ключей идемпотентности шлюза.
var idempotencyNamespace = uuid.MustParse("6f1c8e0a-3b7d-5c2e-9a41-7d2f0c9e8b13")

// IdempotencyKey детерминированно выводит ключ из заказа и номера попытки.
// Повторная отправка той же попытки даёт тот же ключ.
func IdempotencyKey(orderID string, attemptNumber int) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(orderID+":"+strconv.Itoa(attemptNumber))).String()
}

// PaymentOrderManager открывает транзакции в платёжном шлюзе.
type PaymentOrderManager struct {
	repo    repository.OrderRepository
	machine *StateMachine
	gateway paymentgw.Gateway
}

// NewPaymentOrderManager создаёт PaymentOrderManager.
func NewPaymentOrderManager(repo repository.OrderRepository, machine *StateMachine, gateway paymentgw.Gateway) *PaymentOrderManager {
	return &PaymentOrderManager{repo: repo, machine: machine, gateway: gateway}
}

// OpenTransaction открывает первую транзакцию для заказа в статусе created.
// Для заказа в payment_pending возвращает текущую незавершённую попытку.
func (m *PaymentOrderManager) OpenTransaction(ctx context.Context, orderID string) (*domain.PaymentAttempt, error) {
	return m.open(ctx, orderID, domain.EventOpenPayment)
}

// ReopenTransaction открывает новую попытку для заказа в failed или cancelled.
func (m *PaymentOrderManager) ReopenTransaction(ctx context.Context, orderID string) (*domain.PaymentAttempt, error) {
	return m.open(ctx, orderID, domain.EventRetryPayment)
}

func (m *PaymentOrderManager) open(ctx context.Context, orderID string, event domain.OrderEvent) (*domain.PaymentAttempt, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	log := logger.FromContext(ctx)

	order, err := m.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if pending := pendingAttempt(order); pending != nil && event == domain.EventOpenPayment {
		return pending, nil
	}
	if !order.CanApply(event) {
		return nil, transitionError(order, event)
	}

	number := order.NextAttemptNumber()
	key := IdempotencyKey(order.ID, number)

	// Вызов шлюза вне блокировки заказа.
	gatewayOrderID, err := m.gateway.CreateTransaction(ctx, paymentgw.CreateTransactionRequest{
		Amount:         order.GrandTotal(),
		Currency:       order.Currency,
		IdempotencyKey: key,
		Receipt:        order.ID,
		AttemptNumber:  number,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	var attempt *domain.PaymentAttempt
	_, err = m.machine.Update(ctx, orderID, func(tx *Tx) error {
		o := tx.Order

		// Параллельный запрос уже сохранил эту же попытку.
		if existing := o.AttemptByGatewayOrderID(gatewayOrderID); existing != nil {
			attempt = existing
			return nil
		}
		if o.NextAttemptNumber() != number {
			return fmt.Errorf("%w: попытка %d уже открыта", domain.ErrConcurrentUpdate, number)
		}

		a := domain.NewPaymentAttempt(o.ID, number, gatewayOrderID, key, o.GrandTotal(), o.Currency, tx.Now())
		if err := o.AddAttempt(a, tx.Now()); err != nil {
			return err
		}
		if err := tx.Apply(event, a); err != nil {
			return err
		}
		attempt = a
		return nil
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("gateway_order_id", gatewayOrderID).
			Int("attempt_number", number).
			Msg("Транзакция создана в шлюзе, но попытка не сохранена")
		return nil, err
	}

	log.Info().
		Str("attempt_id", attempt.ID).
		Str("gateway_order_id", attempt.GatewayOrderID).
		Int("attempt_number", attempt.AttemptNumber).
		Int64("amount", attempt.Amount).
		Msg("Открыта транзакция оплаты")
	return attempt, nil
}

// pendingAttempt возвращает незавершённую активную попытку заказа в payment_pending.
func pendingAttempt(o *domain.Order) *domain.PaymentAttempt {
	if o.Status != domain.OrderStatusPaymentPending {
		return nil
	}
	if a := o.ActiveAttempt(); a != nil && a.IsPending() {
		return a
	}
	return nil
}

// transitionError уточняет ошибку для оплаченного заказа.
func transitionError(o *domain.Order, event domain.OrderEvent) error {
	if o.Status == domain.OrderStatusPaid || o.Status == domain.OrderStatusFulfilled {
		return domain.ErrNotRetryable
	}
	_, err := domain.NextStatus(o.Status, event)
	return err
}
