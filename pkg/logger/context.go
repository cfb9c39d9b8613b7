package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// ctxKey — приватный тип ключей контекста.
type ctxKey string

const (
	// traceIDKey — идентификатор запроса, сквозной для всех логов запроса.
	traceIDKey ctxKey = "trace_id"

	// correlationIDKey — связывает запросы одной бизнес-операции (checkout → verify → webhook).
	correlationIDKey ctxKey = "correlation_id"

	// orderIDKey — заказ, над которым выполняется операция.
	orderIDKey ctxKey = "order_id"

	// loggerKey — настроенный логгер, переданный через контекст.
	loggerKey ctxKey = "logger"
)

// WithTraceID добавляет trace_id в контекст.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext извлекает trace_id из контекста.
func TraceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// WithCorrelationID добавляет correlation_id в контекст.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id из контекста.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithOrderID добавляет order_id в контекст.
// Все записи лога внутри операции над заказом получат поле order_id.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, orderIDKey, orderID)
}

// OrderIDFromContext извлекает order_id из контекста.
func OrderIDFromContext(ctx context.Context) string {
	return stringValue(ctx, orderIDKey)
}

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext возвращает логгер из контекста, обогащённый trace_id,
// correlation_id и order_id. Без логгера в контексте берётся глобальный.
//
//	log := logger.FromContext(ctx)
//	log.Info().Msg("Платёж подтверждён")
func FromContext(ctx context.Context) zerolog.Logger {
	l := log
	if ctxLogger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		l = ctxLogger
	}

	fields := l.With()
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = fields.Str("trace_id", traceID)
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		fields = fields.Str("correlation_id", correlationID)
	}
	if orderID := OrderIDFromContext(ctx); orderID != "" {
		fields = fields.Str("order_id", orderID)
	}

	return fields.Logger()
}

// Ctx возвращает указатель на логгер из контекста (аналог zerolog.Ctx).
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}

// NewContextWithIDs добавляет непустые trace_id и correlation_id в контекст.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if correlationID != "" {
		ctx = WithCorrelationID(ctx, correlationID)
	}
	return ctx
}

func stringValue(ctx context.Context, key ctxKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
