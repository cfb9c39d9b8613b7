package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/checkout-core/services/checkout/internal/domain"
)

// CouponLoader — источник купонов (таблица coupons).
type CouponLoader interface {
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

// Coupons — купоны с read-through кэшем. Ключ — нормализованный код.
type Coupons struct {
	rt *ReadThrough[domain.Coupon]
}

// NewCoupons создаёт кэш купонов.
func NewCoupons(client redis.UniversalClient, loader CouponLoader, ttl time.Duration) *Coupons {
	store := NewRedisJSON[domain.Coupon](client, "coupon:", ttl)
	return &Coupons{rt: NewReadThrough(store, loader.GetCouponByCode, "coupons")}
}

// GetCoupon возвращает купон по коду.
func (c *Coupons) GetCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	return c.rt.Get(ctx, domain.NormalizeCouponCode(code))
}

// Invalidate удаляет купон из кэша после изменения в каталоге.
func (c *Coupons) Invalidate(ctx context.Context, code string) error {
	return c.rt.Invalidate(ctx, domain.NormalizeCouponCode(code))
}

// ShippingRulesLoader — источник правил доставки (таблица store_settings).
type ShippingRulesLoader interface {
	GetShippingRules(ctx context.Context) (*domain.ShippingRules, error)
}

const shippingRulesKey = "current"

// ShippingRules — правила доставки с read-through кэшем.
type ShippingRules struct {
	rt *ReadThrough[domain.ShippingRules]
}

// NewShippingRules создаёт кэш правил доставки.
func NewShippingRules(client redis.UniversalClient, loader ShippingRulesLoader, ttl time.Duration) *ShippingRules {
	store := NewRedisJSON[domain.ShippingRules](client, "shipping:rules:", ttl)
	load := func(ctx context.Context, _ string) (*domain.ShippingRules, error) {
		return loader.GetShippingRules(ctx)
	}
	return &ShippingRules{rt: NewReadThrough(store, load, "shipping_rules")}
}

// GetShippingRules возвращает текущие правила доставки.
func (s *ShippingRules) GetShippingRules(ctx context.Context) (*domain.ShippingRules, error) {
	return s.rt.Get(ctx, shippingRulesKey)
}

// Invalidate удаляет правила из кэша.
func (s *ShippingRules) Invalidate(ctx context.Context) error {
	return s.rt.Invalidate(ctx, shippingRulesKey)
}
