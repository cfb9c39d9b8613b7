// Package service содержит бизнес-логику checkout: жизненный цикл заказа,
// открытие транзакций в шлюзе, сверку подтверждений оплаты и повтор оплаты.
package service

import (
	"context"
	"errors"
	"time"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// maxConcurrentRetries — сколько раз перечитывать заказ при конфликте версии.
const maxConcurrentRetries = 3

// Tx — изменение заказа под блокировкой строки.
// Переходы и записи сверки копятся в Changes и сохраняются одной транзакцией.
type Tx struct {
	Order *domain.Order

	now     time.Time
	changes repository.Changes
	applied []domain.OrderEvent
	dirty   bool
}

// Now — время текущего изменения.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Apply переводит заказ по событию и добавляет событие в outbox.
func (tx *Tx) Apply(event domain.OrderEvent, attempt *domain.PaymentAttempt) error {
	if err := tx.Order.Apply(event, tx.now); err != nil {
		return err
	}
	tx.record(event, attempt)
	return nil
}

// Fail переводит заказ в failed с причиной.
func (tx *Tx) Fail(reason string, attempt *domain.PaymentAttempt) error {
	if err := tx.Order.Fail(reason, tx.now); err != nil {
		return err
	}
	tx.record(domain.EventPaymentFailed, attempt)
	return nil
}

// Review ставит платёж в очередь ручной сверки.
func (tx *Tx) Review(attempt *domain.PaymentAttempt, paymentID string, reason domain.ReviewReason, channel domain.VerificationChannel, reported *int64) *domain.PaymentReview {
	review := domain.NewPaymentReview(tx.Order, attempt, paymentID, reason, channel, reported, tx.now)
	tx.changes.Reviews = append(tx.changes.Reviews, review)
	tx.changes.Events = append(tx.changes.Events, domain.NewReviewEvent(tx.Order, attempt, review, tx.now))
	tx.dirty = true
	return review
}

// Touch помечает заказ изменённым без перехода (изменились только попытки).
func (tx *Tx) Touch() {
	tx.Order.UpdatedAt = tx.now
	tx.dirty = true
}

func (tx *Tx) record(event domain.OrderEvent, attempt *domain.PaymentAttempt) {
	tx.changes.Events = append(tx.changes.Events, domain.NewTransitionEvent(event, tx.Order, attempt, tx.now))
	tx.applied = append(tx.applied, event)
	tx.dirty = true
}

// StateMachine — единственный путь изменения статуса заказа.
type StateMachine struct {
	repo repository.OrderRepository
	now  func() time.Time
}

// NewStateMachine создаёт StateMachine.
func NewStateMachine(repo repository.OrderRepository, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{repo: repo, now: now}
}

// Update выполняет fn под блокировкой заказа и сохраняет изменения.
// При конфликте версии заказ перечитывается и fn вызывается заново.
func (m *StateMachine) Update(ctx context.Context, orderID string, fn func(tx *Tx) error) (*domain.Order, error) {
	log := logger.FromContext(logger.WithOrderID(ctx, orderID))

	var lastErr error
	for i := 0; i < maxConcurrentRetries; i++ {
		var tx *Tx

		order, err := m.repo.WithOrderLock(ctx, orderID, func(o *domain.Order) (*repository.Changes, error) {
			tx = &Tx{Order: o, now: m.now().UTC()}
			if err := fn(tx); err != nil {
				return nil, err
			}
			if !tx.dirty {
				return nil, nil
			}
			return &tx.changes, nil
		})
		if err == nil {
			for _, event := range tx.applied {
				metrics.OrderTransitionsTotal.WithLabelValues(string(event), string(order.Status)).Inc()
				log.Info().
					Str("event", string(event)).
					Str("status", string(order.Status)).
					Msg("Статус заказа изменён")
			}
			return order, nil
		}
		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			return nil, err
		}

		lastErr = err
		log.Warn().Int("attempt", i+1).Msg("Конфликт версии заказа, повтор")
	}
	return nil, lastErr
}

// Transition применяет одно событие к заказу.
func (m *StateMachine) Transition(ctx context.Context, orderID string, event domain.OrderEvent) (*domain.Order, error) {
	return m.Update(ctx, orderID, func(tx *Tx) error {
		return tx.Apply(event, tx.Order.ActiveAttempt())
	})
}
