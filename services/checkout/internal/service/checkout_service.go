package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// CartSource возвращает снимок корзины пользователя.
type CartSource interface {
	GetCart(ctx context.Context, userID string) (domain.CartSnapshot, error)
}

// CheckoutRequest — запрос на оформление заказа.
type CheckoutRequest struct {
	UserID        string
	CouponCode    *string
	PaymentMethod string
}

// CheckoutResult — созданный заказ и открытая попытка оплаты.
// Attempt равен nil, если шлюз недоступен: заказ остаётся в created.
type CheckoutResult struct {
	Order   *domain.Order
	Attempt *domain.PaymentAttempt
}

// CheckoutService — сценарии пользователя поверх компонентов checkout.
type CheckoutService struct {
	carts    CartSource
	pricer   Pricer
	repo     repository.OrderRepository
	machine  *StateMachine
	payments *PaymentOrderManager
	retry    *RetryCoordinator
	now      func() time.Time
}

// NewCheckoutService создаёт CheckoutService.
func NewCheckoutService(
	carts CartSource,
	pricer Pricer,
	repo repository.OrderRepository,
	machine *StateMachine,
	payments *PaymentOrderManager,
	retry *RetryCoordinator,
) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		pricer:   pricer,
		repo:     repo,
		machine:  machine,
		payments: payments,
		retry:    retry,
		now:      time.Now,
	}
}

// Quote рассчитывает стоимость текущей корзины без создания заказа.
func (s *CheckoutService) Quote(ctx context.Context, userID string, couponCode *string) (domain.PricingResult, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.PricingResult{}, err
	}
	return s.pricer.ComputePricing(ctx, cart, couponCode)
}

// Checkout рассчитывает стоимость, создаёт заказ с зафиксированной суммой
// и открывает транзакцию в шлюзе.
// При недоступности шлюза возвращает заказ вместе с ErrGatewayUnavailable.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ErrInvalidUserID
	}

	cart, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	pricing, err := s.pricer.ComputePricing(ctx, cart, req.CouponCode)
	if err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("Расчёт стоимости отклонён")
		return nil, err
	}

	order, err := domain.NewOrder(req.UserID, cart, pricing, req.PaymentMethod, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, order, nil); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Ошибка создания заказа")
		return nil, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	ctx = logger.WithOrderID(ctx, order.ID)
	logger.Ctx(ctx).Info().
		Str("user_id", order.UserID).
		Int64("grand_total", order.GrandTotal()).
		Int("items", len(order.Cart.Items)).
		Msg("Заказ создан")

	attempt, err := s.payments.OpenTransaction(ctx, order.ID)
	if err != nil {
		return &CheckoutResult{Order: order}, err
	}

	updated, err := s.repo.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Order: updated, Attempt: attempt}, nil
}

// GetOrder возвращает заказ владельцу.
func (s *CheckoutService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// OpenPayment открывает (или возвращает незавершённую) транзакцию для заказа в created.
func (s *CheckoutService) OpenPayment(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.payments.OpenTransaction(ctx, orderID)
}

// RetryPayment открывает новую попытку оплаты для заказа в failed или cancelled.
func (s *CheckoutService) RetryPayment(ctx context.Context, userID, orderID string) (*domain.PaymentAttempt, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.retry.Retry(ctx, orderID)
}

// Cancel отменяет заказ владельца в created или payment_pending.
func (s *CheckoutService) Cancel(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.machine.Transition(ctx, orderID, domain.EventCancel)
}

// Fulfill отмечает оплаченный заказ выполненным (внутренний вызов склада).
func (s *CheckoutService) Fulfill(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.machine.Transition(ctx, orderID, domain.EventFulfill)
	if errors.Is(err, domain.ErrIllegalTransition) {
		logger.Ctx(ctx).Warn().Str("order_id", orderID).Msg("Попытка выполнить неоплаченный заказ")
	}
	return order, err
}
