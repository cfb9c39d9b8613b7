package pricing

import (
	"time"

	"example.com/checkout-core/services/checkout/internal/domain"
)

// Eligibility — применимость купона к позиции.
type Eligibility struct {
	Eligible bool
	Reason   domain.ExclusionReason
}

// CouponValidator проверяет купон против корзины.
// Время берётся из now, чтобы проверки сроков были детерминированы в тестах.
type CouponValidator struct {
	now func() time.Time
}

// NewCouponValidator создаёт валидатор. now == nil означает time.Now.
func NewCouponValidator(now func() time.Time) CouponValidator {
	if now == nil {
		now = time.Now
	}
	return CouponValidator{now: now}
}

// CheckActive возвращает ErrInvalidCoupon для выключенного, ещё не начавшегося,
// истёкшего или структурно некорректного купона.
func (v CouponValidator) CheckActive(coupon *domain.Coupon) error {
	if coupon == nil || !coupon.IsActiveAt(v.now()) {
		return domain.ErrInvalidCoupon
	}
	return coupon.Validate()
}

// Evaluate проверяет каждую позицию независимо.
// Порядок проверок: товар, категория, минимальная сумма позиции.
func (v CouponValidator) Evaluate(coupon *domain.Coupon, cart domain.CartSnapshot) map[string]Eligibility {
	result := make(map[string]Eligibility, len(cart.Items))
	for _, item := range cart.Items {
		result[item.LineItemID] = evaluateItem(coupon.Rules, item)
	}
	return result
}

func evaluateItem(rules domain.EligibilityRules, item domain.LineItem) Eligibility {
	switch {
	case rules.ExcludesProduct(item.ProductID):
		return Eligibility{Reason: domain.ReasonProductExcluded}
	case rules.ExcludesCategory(item.CategoryID):
		return Eligibility{Reason: domain.ReasonCategoryExcluded}
	case item.DiscountedAmount() < rules.MinLineAmount:
		return Eligibility{Reason: domain.ReasonBelowMinLineAmount}
	default:
		return Eligibility{Eligible: true}
	}
}
