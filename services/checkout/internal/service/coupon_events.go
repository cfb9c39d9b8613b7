package service

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/checkout-core/pkg/kafka"
	"example.com/checkout-core/pkg/logger"
)

// CouponInvalidator сбрасывает купон в кэше.
type CouponInvalidator interface {
	Invalidate(ctx context.Context, code string) error
}

// CouponEvent — изменение купона в каталоге.
type CouponEvent struct {
	EventID string `json:"event_id"`
	Code    string `json:"code"`
	Action  string `json:"action"` // created, updated, deactivated, deleted
}

// CouponEventsHandler обрабатывает catalog.coupon-events.
// Обработка идемпотентна: повторная инвалидация безвредна.
type CouponEventsHandler struct {
	coupons CouponInvalidator
}

// NewCouponEventsHandler создаёт обработчик.
func NewCouponEventsHandler(coupons CouponInvalidator) *CouponEventsHandler {
	return &CouponEventsHandler{coupons: coupons}
}

// Handle реализует kafka.MessageHandler.
func (h *CouponEventsHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	var event CouponEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("ошибка разбора события купона: %w", err)
	}
	if event.Code == "" {
		return fmt.Errorf("событие купона без кода (event_id=%s)", event.EventID)
	}

	if err := h.coupons.Invalidate(ctx, event.Code); err != nil {
		return fmt.Errorf("ошибка инвалидации купона %s: %w", event.Code, err)
	}

	logger.Ctx(ctx).Debug().
		Str("coupon", event.Code).
		Str("action", event.Action).
		Msg("Купон сброшен из кэша")
	return nil
}
