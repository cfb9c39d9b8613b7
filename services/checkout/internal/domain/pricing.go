package domain

import "fmt"

// ExclusionReason — причина, по которой купон не применяется к позиции.
type ExclusionReason string

const (
	ReasonProductExcluded    ExclusionReason = "product_excluded"
	ReasonCategoryExcluded   ExclusionReason = "category_excluded"
	ReasonBelowMinLineAmount ExclusionReason = "below_min_line_amount"
)

// ExcludedItem — позиция, к которой купон не применён.
// Amount — сумма позиции после скидки товара.
type ExcludedItem struct {
	LineItemID string          `json:"line_item_id"`
	Reason     ExclusionReason `json:"reason"`
	Amount     int64           `json:"amount"`
}

// PricingResult — итог расчёта стоимости заказа.
// Пересчитывается на каждый запрос и хранится только внутри заказа.
type PricingResult struct {
	OriginalSubtotal         int64          `json:"original_subtotal"`
	ProductDiscountTotal     int64          `json:"product_discount_total"`
	DiscountedSubtotal       int64          `json:"discounted_subtotal"`
	CouponCode               *string        `json:"coupon_code,omitempty"`
	EligibleSubtotal         int64          `json:"eligible_subtotal"`
	CouponDiscountAmount     int64          `json:"coupon_discount_amount"`
	ExcludedItems            []ExcludedItem `json:"excluded_items"`
	ShippingFee              int64          `json:"shipping_fee"`
	IsFreeShipping           bool           `json:"is_free_shipping"`
	RemainingForFreeShipping int64          `json:"remaining_for_free_shipping"`
	GrandTotal               int64          `json:"grand_total"`
}

// ShippingRules — порог бесплатной доставки T и фиксированная стоимость F.
type ShippingRules struct {
	FreeThreshold int64 `json:"free_threshold"`
	FlatFee       int64 `json:"flat_fee"`
}

// Validate проверяет, что значения неотрицательны.
func (r ShippingRules) Validate() error {
	if r.FreeThreshold < 0 || r.FlatFee < 0 {
		return fmt.Errorf("некорректные правила доставки: порог %d, стоимость %d", r.FreeThreshold, r.FlatFee)
	}
	return nil
}
