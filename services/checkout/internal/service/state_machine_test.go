package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/services/checkout/internal/domain"
)

func TestStateMachine_Transition(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	updated, err := f.machine.Transition(context.Background(), order.ID, domain.EventCancel)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, []domain.EventType{domain.EventTypeCancelled}, f.repo.EventTypes())
}

func TestStateMachine_Transition_Illegal(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	_, err := f.machine.Transition(context.Background(), order.ID, domain.EventFulfill)

	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	stored := f.reload(t, order.ID)
	assert.Equal(t, domain.OrderStatusCreated, stored.Status)
	assert.Equal(t, int64(0), stored.Version)
	assert.Empty(t, f.repo.EventTypes())
}

func TestStateMachine_Transition_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.Transition(context.Background(), "missing", domain.EventCancel)

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestStateMachine_Update_RetriesOnConflict(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantCalls int
		wantErr   error
	}{
		{name: "один конфликт", conflicts: 1, wantCalls: 2},
		{name: "два конфликта", conflicts: 2, wantCalls: 3},
		{name: "исчерпаны повторы", conflicts: 3, wantCalls: 3, wantErr: domain.ErrConcurrentUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.createOrder(t)
			f.repo.FailNextSaves(tt.conflicts)

			calls := 0
			_, err := f.machine.Update(context.Background(), order.ID, func(tx *Tx) error {
				calls++
				return tx.Apply(domain.EventCancel, nil)
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.OrderStatusCreated, f.reload(t, order.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusCancelled, f.reload(t, order.ID).Status)
			assert.Len(t, f.repo.EventTypes(), 1, "событие пишется только при успешном сохранении")
		})
	}
}

func TestStateMachine_Update_NoChanges(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	got, err := f.machine.Update(context.Background(), order.ID, func(tx *Tx) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version)
	assert.Equal(t, int64(0), f.reload(t, order.ID).Version)
}

func TestStateMachine_Update_ErrorDiscardsChanges(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	boom := errors.New("boom")

	_, err := f.machine.Update(context.Background(), order.ID, func(tx *Tx) error {
		if err := tx.Apply(domain.EventCancel, nil); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, domain.OrderStatusCreated, f.reload(t, order.ID).Status)
	assert.Empty(t, f.repo.EventTypes())
}
