package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/checkout-core/pkg/logger"
)

// MessageHandler обрабатывает одно сообщение.
// Context содержит trace_id и correlation_id из headers.
type MessageHandler func(ctx context.Context, msg *Message) error

// Reader — часть kafka.Reader, которую использует Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает сообщения топика в составе consumer group.
type Consumer struct {
	reader Reader
	dlq    *Producer
	topic  string
}

// NewConsumer создаёт Consumer для топика.
// Инстансы с одним groupID делят партиции между собой.
func NewConsumer(cfg Config, topic, groupID string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}
	if topic == "" {
		return nil, fmt.Errorf("не указан топик")
	}
	if groupID == "" {
		return nil, fmt.Errorf("не указан group ID")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        250 * time.Millisecond,
		CommitInterval: 0, // синхронный коммит после обработки
		StartOffset:    kafka.LastOffset,
	})

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Создан Kafka Consumer")

	return &Consumer{reader: reader, topic: topic}, nil
}

// NewConsumerWithReader создаёт Consumer поверх произвольного Reader (для тестов).
func NewConsumerWithReader(r Reader, topic string) *Consumer {
	return &Consumer{reader: r, topic: topic}
}

// SetDLQProducer включает отправку необработанных сообщений в DLQ.
func (c *Consumer) SetDLQProducer(p *Producer) {
	c.dlq = p
}

// Consume читает сообщения до отмены context.
// Offset коммитится независимо от результата: ошибочные сообщения уходят в DLQ.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger.Info().Str("topic", c.topic).Msg("Запуск чтения сообщений из Kafka")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("topic", c.topic).Msg("Остановка Consumer")
			return ctx.Err()
		default:
		}

		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error().Err(err).Str("topic", c.topic).Msg("Ошибка чтения сообщения из Kafka")
			continue
		}

		msg := fromKafkaMessage(raw)
		msgCtx := contextFromHeaders(ctx, msg.Headers)

		if err := handler(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().
				Err(err).
				Str("topic", msg.Topic).
				Str("key", string(msg.Key)).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Ошибка обработки сообщения")

			if c.dlq != nil {
				if dlqErr := c.dlq.SendToDLQ(msgCtx, msg, err); dlqErr != nil {
					logger.Error().Err(dlqErr).Msg("Ошибка отправки в DLQ")
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, raw); err != nil {
			logger.Error().Err(err).Str("topic", c.topic).Msg("Ошибка коммита offset")
		}
	}
}

// ConsumeWithRetry повторяет обработку сообщения до maxRetries раз
// с экспоненциальной задержкой 100ms, 200ms, 400ms...
func (c *Consumer) ConsumeWithRetry(ctx context.Context, handler MessageHandler, maxRetries int) error {
	return c.Consume(ctx, func(ctx context.Context, msg *Message) error {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if lastErr = handler(ctx, msg); lastErr == nil {
				return nil
			}
		}
		return fmt.Errorf("исчерпаны попытки обработки: %w", lastErr)
	})
}

// Close закрывает Consumer.
func (c *Consumer) Close() error {
	logger.Info().Str("topic", c.topic).Msg("Закрытие Kafka Consumer")

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия consumer: %w", err)
	}
	return nil
}
