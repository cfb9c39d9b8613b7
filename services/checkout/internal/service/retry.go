package service

import (
	"context"
	"fmt"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// Pricer — расчёт стоимости корзины.
type Pricer interface {
	ComputePricing(ctx context.Context, cart domain.CartSnapshot, couponCode *string) (domain.PricingResult, error)
}

// RetryCoordinator открывает новую попытку оплаты для того же заказа.
// Заказ, его идентификатор и сумма не меняются.
type RetryCoordinator struct {
	repo     repository.OrderRepository
	payments *PaymentOrderManager
	pricer   Pricer
	reprice  bool
}

// NewRetryCoordinator создаёт RetryCoordinator.
// При reprice == true перед повтором стоимость пересчитывается по снимку корзины,
// и повтор отклоняется, если итог изменился.
func NewRetryCoordinator(repo repository.OrderRepository, payments *PaymentOrderManager, pricer Pricer, reprice bool) *RetryCoordinator {
	return &RetryCoordinator{repo: repo, payments: payments, pricer: pricer, reprice: reprice}
}

// Retry допустим только для заказов в failed или cancelled.
func (r *RetryCoordinator) Retry(ctx context.Context, orderID string) (*domain.PaymentAttempt, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	order, err := r.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case order.Status == domain.OrderStatusPaid || order.Status == domain.OrderStatusFulfilled:
		return nil, domain.ErrNotRetryable
	case !order.Status.IsRetryable():
		return nil, fmt.Errorf("%w: повтор оплаты из статуса %s", domain.ErrIllegalTransition, order.Status)
	}

	if r.reprice {
		if err := r.checkPrice(ctx, order); err != nil {
			return nil, err
		}
	}

	attempt, err := r.payments.ReopenTransaction(ctx, orderID)
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Int("attempt_number", attempt.AttemptNumber).
		Msg("Повтор оплаты заказа")
	return attempt, nil
}

// checkPrice пересчитывает стоимость зафиксированной корзины с текущими
// купоном и правилами доставки.
func (r *RetryCoordinator) checkPrice(ctx context.Context, order *domain.Order) error {
	pricing, err := r.pricer.ComputePricing(ctx, order.Cart, order.Pricing.CouponCode)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPriceChanged, err)
	}
	if pricing.GrandTotal != order.GrandTotal() {
		logger.Ctx(ctx).Warn().
			Int64("frozen_total", order.GrandTotal()).
			Int64("current_total", pricing.GrandTotal).
			Msg("Стоимость заказа изменилась, повтор отклонён")
		return fmt.Errorf("%w: было %d, стало %d", domain.ErrPriceChanged, order.GrandTotal(), pricing.GrandTotal)
	}
	return nil
}
