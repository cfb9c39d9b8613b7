package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger перенаправляет глобальный логгер в буфер на время теста.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()

	prev := Logger()
	buf := &bytes.Buffer{}
	Init(Config{Level: "debug", Output: buf, Service: "checkout-test"})
	t.Cleanup(func() { SetGlobalLogger(prev) })

	return buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "запись лога должна быть валидным JSON")
	return entry
}

func TestFromContext_AddsIDs(t *testing.T) {
	buf := captureLogger(t)

	ctx := NewContextWithIDs(context.Background(), "trace-1", "corr-1")
	ctx = WithOrderID(ctx, "order-42")

	l := FromContext(ctx)
	l.Info().Msg("Заказ создан")

	entry := decodeLine(t, buf)
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "order-42", entry["order_id"])
	assert.Equal(t, "checkout-test", entry["service"])
	assert.Equal(t, "Заказ создан", entry["message"])
}

func TestFromContext_WithoutIDs(t *testing.T) {
	buf := captureLogger(t)

	Ctx(context.Background()).Warn().Msg("Без идентификаторов")

	entry := decodeLine(t, buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "order_id")
	assert.Equal(t, "warn", entry["level"])
}

func TestFromContext_UsesContextLogger(t *testing.T) {
	captureLogger(t)

	custom := &bytes.Buffer{}
	ctx := WithLogger(context.Background(), zerolog.New(custom).With().Str("component", "verifier").Logger())

	l := FromContext(ctx)
	l.Info().Msg("Проверка подписи")

	entry := decodeLine(t, custom)
	assert.Equal(t, "verifier", entry["component"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"неизвестно", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}
