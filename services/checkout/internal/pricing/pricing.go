// Package pricing рассчитывает стоимость заказа: скидки товаров,
// купон с исключениями по позициям и доставку по порогу.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/pkg/tracing"
	"example.com/checkout-core/services/checkout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CouponSource возвращает купон по коду. Неизвестный код — domain.ErrCouponNotFound.
type CouponSource interface {
	GetCoupon(ctx context.Context, code string) (*domain.Coupon, error)
}

// Compute — чистый расчёт стоимости. coupon может быть nil.
// Применимость купона должна быть проверена заранее (CheckActive).
func Compute(cart domain.CartSnapshot, coupon *domain.Coupon, rules domain.ShippingRules, validator CouponValidator) (domain.PricingResult, error) {
	if err := cart.Validate(); err != nil {
		return domain.PricingResult{}, err
	}

	var result domain.PricingResult
	for _, item := range cart.Items {
		result.OriginalSubtotal += item.OriginalAmount()
		result.DiscountedSubtotal += item.DiscountedAmount()
	}
	result.ProductDiscountTotal = result.OriginalSubtotal - result.DiscountedSubtotal
	result.ExcludedItems = []domain.ExcludedItem{}

	if coupon != nil {
		eligibility := validator.Evaluate(coupon, cart)

		for _, item := range cart.Items {
			e := eligibility[item.LineItemID]
			if e.Eligible {
				result.EligibleSubtotal += item.DiscountedAmount()
				continue
			}
			result.ExcludedItems = append(result.ExcludedItems, domain.ExcludedItem{
				LineItemID: item.LineItemID,
				Reason:     e.Reason,
				Amount:     item.DiscountedAmount(),
			})
		}

		if len(result.ExcludedItems) == len(cart.Items) {
			return domain.PricingResult{}, domain.ErrCouponNotApplicable
		}

		code := coupon.Code
		result.CouponCode = &code
		result.CouponDiscountAmount = couponDiscount(coupon, result.EligibleSubtotal)
	}

	payable := max(0, result.DiscountedSubtotal-result.CouponDiscountAmount)
	shipping := NewShippingCalculator(rules).Calculate(payable)

	result.ShippingFee = shipping.ShippingFee
	result.IsFreeShipping = shipping.IsFreeShipping
	result.RemainingForFreeShipping = shipping.RemainingForFreeShipping
	result.GrandTotal = payable + shipping.ShippingFee

	return result, nil
}

// couponDiscount считает скидку купона и ограничивает её диапазоном [0, eligible].
func couponDiscount(coupon *domain.Coupon, eligible int64) int64 {
	var discount int64

	switch coupon.DiscountType {
	case domain.DiscountPercentage:
		discount = percentOf(eligible, coupon.DiscountValue)
	case domain.DiscountFixed:
		discount = coupon.DiscountValue.Round(0).IntPart()
	case domain.DiscountPercentageUpTo:
		discount = percentOf(eligible, coupon.DiscountValue)
		if coupon.MaxDiscountAmount != nil {
			discount = min(discount, *coupon.MaxDiscountAmount)
		}
	}

	return min(max(discount, 0), eligible)
}

// percentOf — amount * percent / 100 с округлением half-up.
func percentOf(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}

// Engine — расчёт стоимости с загрузкой купона и правил доставки.
type Engine struct {
	coupons   CouponSource
	shipping  *ShippingRulesProvider
	validator CouponValidator
}

// NewEngine создаёт Engine.
func NewEngine(coupons CouponSource, shipping *ShippingRulesProvider, validator CouponValidator) *Engine {
	return &Engine{coupons: coupons, shipping: shipping, validator: validator}
}

// ComputePricing рассчитывает стоимость корзины с необязательным купоном.
// Пустой код купона равнозначен его отсутствию.
func (e *Engine) ComputePricing(ctx context.Context, cart domain.CartSnapshot, couponCode *string) (domain.PricingResult, error) {
	ctx, span := tracing.Tracer("checkout/pricing").Start(ctx, "pricing.ComputePricing")
	defer span.End()

	span.SetAttributes(attribute.Int("cart.items", len(cart.Items)))

	result, err := e.compute(ctx, cart, couponCode)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.PricingTotal.WithLabelValues(pricingResultLabel(err)).Inc()
		return domain.PricingResult{}, err
	}

	span.SetAttributes(attribute.Int64("pricing.grand_total", result.GrandTotal))
	metrics.PricingTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (e *Engine) compute(ctx context.Context, cart domain.CartSnapshot, couponCode *string) (domain.PricingResult, error) {
	if err := cart.Validate(); err != nil {
		return domain.PricingResult{}, err
	}

	var coupon *domain.Coupon
	if couponCode != nil && domain.NormalizeCouponCode(*couponCode) != "" {
		code := domain.NormalizeCouponCode(*couponCode)

		c, err := e.coupons.GetCoupon(ctx, code)
		if err != nil {
			if errors.Is(err, domain.ErrCouponNotFound) {
				return domain.PricingResult{}, fmt.Errorf("%w: %s", domain.ErrInvalidCoupon, code)
			}
			return domain.PricingResult{}, fmt.Errorf("ошибка загрузки купона: %w", err)
		}
		if err := e.validator.CheckActive(c); err != nil {
			logger.Ctx(ctx).Debug().Str("coupon", code).Err(err).Msg("Купон отклонён")
			return domain.PricingResult{}, fmt.Errorf("%w: %s", domain.ErrInvalidCoupon, code)
		}
		coupon = c
	}

	return Compute(cart, coupon, e.shipping.Rules(ctx), e.validator)
}

func pricingResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidCart):
		return "invalid_cart"
	case errors.Is(err, domain.ErrInvalidCoupon):
		return "invalid_coupon"
	case errors.Is(err, domain.ErrCouponNotApplicable):
		return "not_applicable"
	default:
		return "error"
	}
}
