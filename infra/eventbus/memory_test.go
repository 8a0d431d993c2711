package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/ledger/pkg/domain/events"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T) eventbus.Envelope {
	t.Helper()
	env, err := eventbus.NewEnvelope(events.BalancesRebuilt{AccountsRefreshed: 3}, uuid.New(), time.Now())
	require.NoError(t, err)
	return env
}

func TestMemoryEventBus(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(nil)
	var got []eventbus.Envelope
	bus.Register(events.EventTypeBalancesRebuilt.String(), func(_ context.Context, env eventbus.Envelope) error {
		got = append(got, env)
		return nil
	})

	env := envelope(t)
	require.NoError(t, bus.Emit(context.Background(), env))
	require.Len(t, got, 1)

	var decoded events.BalancesRebuilt
	require.NoError(t, got[0].Decode(&decoded))
	assert.Equal(t, 3, decoded.AccountsRefreshed)
	assert.Len(t, bus.Published(), 1)

	bus.ClearPublished()
	assert.Empty(t, bus.Published())
}

func TestMemoryEventBusReturnsHandlerErrors(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(nil)
	boom := errors.New("boom")
	bus.Register(events.EventTypeBalancesRebuilt.String(), func(context.Context, eventbus.Envelope) error { return boom })
	bus.Register(events.EventTypeBalancesRebuilt.String(), func(context.Context, eventbus.Envelope) error { panic("bad") })

	err := bus.Emit(context.Background(), envelope(t))
	assert.ErrorIs(t, err, boom)
}
