package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItem — позиция корзины на момент оформления.
// Цены в целых единицах валюты (рупиях).
type LineItem struct {
	LineItemID      string          `json:"line_item_id"`
	ProductID       string          `json:"product_id"`
	CategoryID      string          `json:"category_id"`
	Name            string          `json:"name"`
	UnitPrice       int64           `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Quantity        int             `json:"quantity"`
}

// Validate проверяет инварианты позиции.
func (li LineItem) Validate() error {
	if strings.TrimSpace(li.LineItemID) == "" {
		return fmt.Errorf("%w: пустой line_item_id", ErrInvalidCart)
	}
	if strings.TrimSpace(li.ProductID) == "" {
		return fmt.Errorf("%w: позиция %s без product_id", ErrInvalidCart, li.LineItemID)
	}
	if li.Quantity <= 0 {
		return fmt.Errorf("%w: позиция %s: количество должно быть больше нуля", ErrInvalidCart, li.LineItemID)
	}
	if li.UnitPrice < 0 {
		return fmt.Errorf("%w: позиция %s: отрицательная цена", ErrInvalidCart, li.LineItemID)
	}
	if li.DiscountPercent.IsNegative() || li.DiscountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: позиция %s: скидка должна быть от 0 до 100%%", ErrInvalidCart, li.LineItemID)
	}
	return nil
}

// DiscountedUnitPrice — цена единицы после скидки товара, округлённая half-up.
func (li LineItem) DiscountedUnitPrice() int64 {
	return decimal.NewFromInt(li.UnitPrice).
		Mul(hundred.Sub(li.DiscountPercent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// OriginalAmount — стоимость позиции без скидок.
func (li LineItem) OriginalAmount() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// DiscountedAmount — стоимость позиции после скидки товара.
// Округляется цена единицы, а не сумма по позиции.
func (li LineItem) DiscountedAmount() int64 {
	return li.DiscountedUnitPrice() * int64(li.Quantity)
}

// CartSnapshot — неизменяемый снимок корзины, фиксируется в заказе по значению.
type CartSnapshot struct {
	Items      []LineItem `json:"items"`
	Currency   string     `json:"currency"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Validate проверяет, что корзина не пуста и все позиции корректны.
func (c CartSnapshot) Validate() error {
	if len(c.Items) == 0 {
		return ErrEmptyCart
	}

	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if err := item.Validate(); err != nil {
			return err
		}
		if _, dup := seen[item.LineItemID]; dup {
			return fmt.Errorf("%w: повторяющийся line_item_id %s", ErrInvalidCart, item.LineItemID)
		}
		seen[item.LineItemID] = struct{}{}
	}
	return nil
}
