// Package outbox реализует Transactional Outbox для событий заказов.
// Событие пишется в таблицу outbox в той же транзакции, что и изменение заказа,
// а Worker доставляет его в Kafka с гарантией at-least-once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/checkout-core/pkg/kafka"
	"example.com/checkout-core/pkg/logger"
)

// Outbox — запись об исходящем событии.
type Outbox struct {
	ID            string
	AggregateType string // "order"
	AggregateID   string // order_id
	EventType     string // order.paid, payment.review_required, ...
	Topic         string
	MessageKey    string // ключ партиционирования, совпадает с AggregateID
	Payload       []byte
	Headers       map[string]string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     *string
}

// NewRecord сериализует payload и создаёт запись outbox.
// trace_id и correlation_id запроса сохраняются в headers.
func NewRecord(ctx context.Context, aggregateType, aggregateID, eventType, topic string, payload any) (*Outbox, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", eventType, err)
	}

	headers := map[string]string{kafka.HeaderEventType: eventType}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		headers[kafka.HeaderTraceID] = traceID
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		headers[kafka.HeaderCorrelationID] = correlationID
	}

	return &Outbox{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		MessageKey:    aggregateID,
		Payload:       data,
		Headers:       headers,
	}, nil
}

// toMessage конвертирует запись в сообщение Kafka.
func (o *Outbox) toMessage() *kafka.Message {
	headers := make(map[string]string, len(o.Headers))
	for k, v := range o.Headers {
		headers[k] = v
	}
	return &kafka.Message{
		Topic:   o.Topic,
		Key:     []byte(o.MessageKey),
		Value:   o.Payload,
		Headers: headers,
	}
}
