package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType — способ расчёта скидки купона.
type DiscountType string

const (
	// DiscountPercentage — процент от суммы подходящих позиций.
	DiscountPercentage DiscountType = "percentage"

	// DiscountFixed — фиксированная сумма, не больше суммы подходящих позиций.
	DiscountFixed DiscountType = "fixed"

	// DiscountPercentageUpTo — процент, ограниченный MaxDiscountAmount.
	DiscountPercentageUpTo DiscountType = "percentage_upto"
)

// EligibilityRules — правила применимости купона к позициям.
type EligibilityRules struct {
	ExcludedCategoryIDs []string `json:"excluded_category_ids,omitempty"`
	ExcludedProductIDs  []string `json:"excluded_product_ids,omitempty"`
	MinLineAmount       int64    `json:"min_line_amount,omitempty"` // по сумме позиции после скидки товара
}

// ExcludesProduct сообщает, исключён ли товар.
func (r EligibilityRules) ExcludesProduct(productID string) bool {
	return slices.Contains(r.ExcludedProductIDs, productID)
}

// ExcludesCategory сообщает, исключена ли категория.
func (r EligibilityRules) ExcludesCategory(categoryID string) bool {
	return categoryID != "" && slices.Contains(r.ExcludedCategoryIDs, categoryID)
}

// Coupon — купон магазина. Создаётся в админке каталога, для checkout только чтение.
type Coupon struct {
	Code              string           `json:"code"`
	DiscountType      DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *int64           `json:"max_discount_amount,omitempty"`
	Rules             EligibilityRules `json:"rules"`
	Active            bool             `json:"active"`
	StartsAt          *time.Time       `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
}

// Validate проверяет структурную корректность купона.
// Купон с неизвестным типом или некорректным значением считается недействительным.
func (c *Coupon) Validate() error {
	if c.DiscountValue.IsNegative() {
		return fmt.Errorf("%w: отрицательное значение скидки", ErrInvalidCoupon)
	}

	switch c.DiscountType {
	case DiscountPercentage:
		if c.DiscountValue.GreaterThan(hundred) {
			return fmt.Errorf("%w: процент больше 100", ErrInvalidCoupon)
		}
	case DiscountFixed:
	case DiscountPercentageUpTo:
		if c.DiscountValue.GreaterThan(hundred) {
			return fmt.Errorf("%w: процент больше 100", ErrInvalidCoupon)
		}
		if c.MaxDiscountAmount == nil || *c.MaxDiscountAmount < 0 {
			return fmt.Errorf("%w: для percentage_upto нужен max_discount_amount", ErrInvalidCoupon)
		}
	default:
		return fmt.Errorf("%w: неизвестный тип скидки %q", ErrInvalidCoupon, c.DiscountType)
	}
	return nil
}

// IsActiveAt проверяет флаг активности и период действия.
func (c *Coupon) IsActiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// NormalizeCouponCode приводит код к виду, в котором он хранится.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
