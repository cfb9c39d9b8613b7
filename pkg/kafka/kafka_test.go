package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/pkg/logger"
)

// fakeWriter запоминает отправленные сообщения.
type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader отдаёт заранее заданные сообщения, затем ждёт отмены context.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_SendMessage_AddsHeadersFromContext(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w)

	ctx := logger.NewContextWithIDs(context.Background(), "trace-1", "corr-1")
	err := p.SendMessage(ctx, &Message{
		Topic: TopicOrderEvents,
		Key:   []byte("order-1"),
		Value: []byte(`{"type":"order.paid"}`),
	})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	sent := w.messages[0]
	assert.Equal(t, TopicOrderEvents, sent.Topic)
	assert.Equal(t, "trace-1", headerValue(sent, HeaderTraceID))
	assert.Equal(t, "corr-1", headerValue(sent, HeaderCorrelationID))
	assert.NotEmpty(t, headerValue(sent, HeaderTimestamp))
}

func TestProducer_SendMessage_KeepsExplicitHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w)

	ctx := logger.WithTraceID(context.Background(), "trace-from-ctx")
	err := p.SendMessage(ctx, &Message{
		Topic:   TopicOrderEvents,
		Headers: map[string]string{HeaderTraceID: "trace-from-outbox"},
	})
	require.NoError(t, err)

	assert.Equal(t, "trace-from-outbox", headerValue(w.messages[0], HeaderTraceID))
}

func TestProducer_SendMessage_WriterError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("broker down")})

	err := p.SendMessage(context.Background(), &Message{Topic: TopicOrderEvents})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestConsumer_Consume_FailedMessageGoesToDLQ(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: TopicCouponEvents, Key: []byte("SAVE10"), Value: []byte(`{"code":"SAVE10"}`), Offset: 1},
		{Topic: TopicCouponEvents, Key: []byte("BAD"), Value: []byte(`not-json`), Offset: 2,
			Headers: []kafka.Header{{Key: HeaderTraceID, Value: []byte("trace-9")}}},
	}}
	dlqWriter := &fakeWriter{}

	c := NewConsumerWithReader(reader, TopicCouponEvents)
	c.SetDLQProducer(NewProducerWithWriter(dlqWriter))

	ctx, cancel := context.WithCancel(context.Background())
	var handled []string
	var seenTrace string

	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(ctx context.Context, msg *Message) error {
			handled = append(handled, string(msg.Key))
			if string(msg.Key) == "BAD" {
				seenTrace = logger.TraceIDFromContext(ctx)
				cancel()
				return errors.New("невалидный payload")
			}
			return nil
		})
	}()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"SAVE10", "BAD"}, handled)
	assert.Equal(t, "trace-9", seenTrace, "trace_id из headers должен попасть в context")

	require.Len(t, dlqWriter.messages, 1)
	assert.Equal(t, TopicDLQ, dlqWriter.messages[0].Topic)
	assert.Equal(t, TopicCouponEvents, headerValue(dlqWriter.messages[0], "dlq_original_topic"))
	assert.Len(t, reader.committed, 2, "offset коммитится и для ошибочного сообщения")
}
