package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/pkg/kafka"
)

type fakeInvalidator struct {
	codes []string
	err   error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, code string) error {
	if f.err != nil {
		return f.err
	}
	f.codes = append(f.codes, code)
	return nil
}

func TestCouponEventsHandler_Handle(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		invErr    error
		wantCodes []string
		wantErr   bool
	}{
		{name: "деактивация", value: `{"event_id":"e-1","code":"SAVE10","action":"deactivated"}`, wantCodes: []string{"SAVE10"}},
		{name: "обновление", value: `{"event_id":"e-2","code":"FLAT50","action":"updated"}`, wantCodes: []string{"FLAT50"}},
		{name: "невалидный JSON", value: `not-json`, wantErr: true},
		{name: "без кода", value: `{"event_id":"e-3","action":"deleted"}`, wantErr: true},
		{name: "Redis недоступен", value: `{"code":"SAVE10"}`, invErr: errors.New("redis down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvalidator{err: tt.invErr}
			h := NewCouponEventsHandler(inv)

			err := h.Handle(context.Background(), &kafka.Message{Topic: kafka.TopicCouponEvents, Value: []byte(tt.value)})

			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, inv.codes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCodes, inv.codes)
		})
	}
}
