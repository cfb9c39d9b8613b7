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

// StalePaymentReason — причина отказа по таймауту оплаты.
const StalePaymentReason = "payment_timeout"

// SweeperConfig — настройки StalePaymentSweeper.
type SweeperConfig struct {
	// PollInterval — интервал между сканированиями.
	PollInterval time.Duration

	// StaleAfter — заказ в payment_pending без изменений дольше этого считается зависшим.
	StaleAfter time.Duration

	// BatchSize — максимальное количество заказов за один цикл.
	BatchSize int
}

// DefaultSweeperConfig возвращает конфигурацию по умолчанию.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		PollInterval: time.Minute,
		StaleAfter:   30 * time.Minute,
		BatchSize:    50,
	}
}

// StalePaymentSweeper переводит зависшие в payment_pending заказы в failed,
// после чего их можно оплатить повторно.
type StalePaymentSweeper struct {
	repo    repository.OrderRepository
	machine *StateMachine
	cfg     SweeperConfig
	now     func() time.Time
}

// NewStalePaymentSweeper создаёт StalePaymentSweeper.
func NewStalePaymentSweeper(repo repository.OrderRepository, machine *StateMachine, cfg SweeperConfig) *StalePaymentSweeper {
	return &StalePaymentSweeper{repo: repo, machine: machine, cfg: cfg, now: time.Now}
}

// Run блокирует выполнение до отмены контекста.
func (w *StalePaymentSweeper) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Dur("stale_after", w.cfg.StaleAfter).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Stale Payment Sweeper")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Stale Payment Sweeper")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep обрабатывает одну пачку зависших заказов и возвращает число закрытых.
func (w *StalePaymentSweeper) Sweep(ctx context.Context) int {
	log := logger.FromContext(ctx)
	cutoff := w.now().UTC().Add(-w.cfg.StaleAfter)

	ids, err := w.repo.ListStalePending(ctx, cutoff, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка поиска зависших заказов")
		return 0
	}

	swept := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return swept
		}

		closed, err := w.sweepOrder(ctx, id, cutoff)
		if err != nil {
			log.Error().Err(err).Str("order_id", id).Msg("Ошибка закрытия зависшего заказа")
			continue
		}
		if closed {
			swept++
			metrics.StaleOrdersSweptTotal.Inc()
		}
	}

	if swept > 0 {
		log.Info().Int("count", swept).Msg("Зависшие заказы переведены в failed")
	}
	return swept
}

// sweepOrder перепроверяет заказ под блокировкой: подтверждение могло прийти
// между выборкой и блокировкой.
func (w *StalePaymentSweeper) sweepOrder(ctx context.Context, orderID string, cutoff time.Time) (bool, error) {
	closed := false

	_, err := w.machine.Update(ctx, orderID, func(tx *Tx) error {
		o := tx.Order
		if o.Status != domain.OrderStatusPaymentPending || o.VerifiedAttempt() != nil || !o.StatusChangedAt.Before(cutoff) {
			return nil
		}

		active := o.ActiveAttempt()
		if active != nil && active.IsPending() {
			if err := active.MarkFailed(StalePaymentReason, tx.Now()); err != nil {
				return err
			}
		}
		if err := tx.Fail(StalePaymentReason, active); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		return false, nil
	}
	return closed, err
}
