package pricing

import (
	"context"
	"sync"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/services/checkout/internal/domain"
)

// ShippingQuote — стоимость доставки для суммы заказа.
type ShippingQuote struct {
	ShippingFee              int64
	IsFreeShipping           bool
	RemainingForFreeShipping int64
}

// ShippingCalculator считает доставку по порогу бесплатной доставки.
type ShippingCalculator struct {
	rules domain.ShippingRules
}

// NewShippingCalculator создаёт калькулятор с правилами {T, F}.
func NewShippingCalculator(rules domain.ShippingRules) ShippingCalculator {
	return ShippingCalculator{rules: rules}
}

// Calculate: бесплатно при amount >= T, иначе F.
func (c ShippingCalculator) Calculate(amount int64) ShippingQuote {
	if amount >= c.rules.FreeThreshold {
		return ShippingQuote{IsFreeShipping: true}
	}
	return ShippingQuote{
		ShippingFee:              c.rules.FlatFee,
		RemainingForFreeShipping: c.rules.FreeThreshold - amount,
	}
}

// ShippingRulesSource — источник актуальных правил доставки.
type ShippingRulesSource interface {
	GetShippingRules(ctx context.Context) (*domain.ShippingRules, error)
}

// ShippingRulesProvider отдаёт правила доставки и никогда не возвращает ошибку.
// При недоступности источника используются последние полученные правила,
// а если их нет, значения по умолчанию из конфигурации.
type ShippingRulesProvider struct {
	source   ShippingRulesSource
	defaults domain.ShippingRules

	mu        sync.RWMutex
	lastKnown *domain.ShippingRules
}

// NewShippingRulesProvider создаёт провайдер. source может быть nil.
func NewShippingRulesProvider(source ShippingRulesSource, defaults domain.ShippingRules) *ShippingRulesProvider {
	return &ShippingRulesProvider{source: source, defaults: defaults}
}

// Rules возвращает правила доставки.
func (p *ShippingRulesProvider) Rules(ctx context.Context) domain.ShippingRules {
	if p.source == nil {
		return p.defaults
	}

	rules, err := p.source.GetShippingRules(ctx)
	if err == nil && rules != nil && rules.Validate() == nil {
		p.mu.Lock()
		copied := *rules
		p.lastKnown = &copied
		p.mu.Unlock()
		return *rules
	}

	log := logger.FromContext(ctx)

	p.mu.RLock()
	last := p.lastKnown
	p.mu.RUnlock()

	if last != nil {
		metrics.ShippingFallbackTotal.WithLabelValues("last_known").Inc()
		log.Warn().Err(err).Msg("Правила доставки недоступны, используются последние известные")
		return *last
	}

	metrics.ShippingFallbackTotal.WithLabelValues("defaults").Inc()
	log.Warn().Err(err).
		Int64("free_threshold", p.defaults.FreeThreshold).
		Int64("flat_fee", p.defaults.FlatFee).
		Msg("Правила доставки недоступны, используются значения по умолчанию")
	return p.defaults
}
