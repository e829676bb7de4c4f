package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(zap.NewNop(), 64)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})
	return bus
}

func TestPublishPreservesOrder(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	bus.SubscribeFunc(CountdownTick, func(_ context.Context, e Event) error {
		ev := e.(CountdownTickEvent)
		mu.Lock()
		got = append(got, ev.SecondsLeft)
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := 1; i <= 10; i++ {
		require.NoError(t, bus.Publish(CountdownTickEvent{
			BaseEvent:   NewBase(CountdownTick),
			SecondsLeft: i,
		}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got, "the single processing goroutine keeps publish order")
}

func TestSubscribeOnlyMatchingType(t *testing.T) {
	bus := newTestBus(t)

	status := make(chan Event, 4)
	bus.SubscribeFunc(StatusChanged, func(_ context.Context, e Event) error {
		status <- e
		return nil
	})

	require.NoError(t, bus.Publish(CountdownTickEvent{BaseEvent: NewBase(CountdownTick), SecondsLeft: 5}))
	require.NoError(t, bus.Publish(StatusChangedEvent{BaseEvent: NewBase(StatusChanged), Status: "Fetching..."}))

	select {
	case e := <-status:
		assert.Equal(t, StatusChanged, e.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("status event not delivered")
	}
	assert.Empty(t, status)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan struct{}, 4)
	sub := bus.SubscribeFunc(StatusChanged, func(_ context.Context, _ Event) error {
		received <- struct{}{}
		return nil
	})

	require.NoError(t, bus.PublishSync(context.Background(), StatusChangedEvent{BaseEvent: NewBase(StatusChanged)}))
	require.Len(t, received, 1)
	<-received

	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), StatusChangedEvent{BaseEvent: NewBase(StatusChanged)}))
	assert.Empty(t, received)
}

func TestPublishAfterShutdown(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	err := bus.Publish(StatusChangedEvent{BaseEvent: NewBase(StatusChanged)})
	assert.Error(t, err)
}

func TestPublishSyncCollectsHandlerErrors(t *testing.T) {
	bus := newTestBus(t)

	bus.SubscribeFunc(StatusChanged, func(_ context.Context, _ Event) error {
		return assert.AnError
	})

	err := bus.PublishSync(context.Background(), StatusChangedEvent{BaseEvent: NewBase(StatusChanged)})
	assert.Error(t, err)
}
