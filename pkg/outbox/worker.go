package outbox

import (
	"context"
	"time"

	"example.com/checkout-core/pkg/kafka"
	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
)

// Publisher — отправка сообщений в Kafka. Реализуется kafka.Producer.
type Publisher interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// WorkerConfig — настройки Worker.
type WorkerConfig struct {
	// PollInterval — интервал опроса таблицы outbox.
	PollInterval time.Duration

	// BatchSize — количество записей за один опрос.
	BatchSize int

	// MaxRetries — после стольких неудачных отправок запись выводится из очереди.
	MaxRetries int

	// Retention — срок хранения отправленных записей.
	Retention time.Duration

	// CleanupInterval — интервал очистки отправленных записей.
	CleanupInterval time.Duration
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    1 * time.Second,
		BatchSize:       100,
		MaxRetries:      5,
		Retention:       7 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}

// Worker читает записи outbox и публикует их в Kafka.
// Гарантия доставки at-least-once: потребители дедуплицируют по event_id.
type Worker struct {
	repo      Repository
	publisher Publisher
	cfg       WorkerConfig
}

// NewWorker создаёт Worker.
func NewWorker(repo Repository, publisher Publisher, cfg WorkerConfig) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.PublishBatch(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// PublishBatch отправляет одну пачку неотправленных записей.
// Возвращает количество успешно отправленных.
func (w *Worker) PublishBatch(ctx context.Context) int {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка чтения outbox")
		return 0
	}

	published := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return published
		}

		if record.RetryCount >= w.cfg.MaxRetries {
			log.Warn().
				Str("outbox_id", record.ID).
				Str("event_type", record.EventType).
				Str("order_id", record.AggregateID).
				Int("retry_count", record.RetryCount).
				Msg("Dead letter: превышен лимит попыток, запись выведена из очереди")

			metrics.OutboxPublishedTotal.WithLabelValues("dead_letter").Inc()
			if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
				log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки dead letter")
			}
			continue
		}

		if err := w.publish(ctx, record); err == nil {
			published++
		}
	}
	return published
}

// publish отправляет запись с trace_id исходного запроса.
func (w *Worker) publish(ctx context.Context, record *Outbox) error {
	msgCtx := logger.NewContextWithIDs(ctx, record.Headers[kafka.HeaderTraceID], record.Headers[kafka.HeaderCorrelationID])
	log := logger.FromContext(logger.WithOrderID(msgCtx, record.AggregateID))

	if err := w.publisher.SendMessage(msgCtx, record.toMessage()); err != nil {
		metrics.OutboxPublishedTotal.WithLabelValues("error").Inc()
		log.Error().
			Err(err).
			Str("outbox_id", record.ID).
			Str("topic", record.Topic).
			Msg("Ошибка отправки события в Kafka")

		if markErr := w.repo.MarkFailed(ctx, record.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как failed")
		}
		return err
	}

	metrics.OutboxPublishedTotal.WithLabelValues("success").Inc()

	// Повторная отправка после сбоя здесь безопасна: событие несёт event_id.
	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как отправленной")
		return err
	}

	log.Debug().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Msg("Событие отправлено в Kafka")
	return nil
}

func (w *Worker) cleanup(ctx context.Context) {
	log := logger.FromContext(ctx)

	deleted, err := w.repo.DeleteProcessedBefore(ctx, time.Now().Add(-w.cfg.Retention))
	if err != nil {
		log.Error().Err(err).Msg("Ошибка очистки outbox")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Очистка отправленных записей outbox")
	}
}
