package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEventBusDeliversToAllByDefault(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	a := bus.AddSubscriber()
	b := bus.AddSubscriber()

	bus.Publish(EventClientConnected, map[string]any{"id": "peer-1"})

	for _, sub := range []*Subscriber{a, b} {
		ev := recvEvent(t, sub)
		assert.Equal(t, EventClientConnected, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestEventBusTopicFilter(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.AddSubscriber()
	sub.Subscribe(EventBanAdded)

	bus.Publish(EventClientConnected, nil)
	bus.Publish(EventBanAdded, map[string]any{"id": "peer-1"})

	ev := recvEvent(t, sub)
	assert.Equal(t, EventBanAdded, ev.Type)

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected extra event %s", ev.Type)
	default:
	}
}

func TestEventBusUnsubscribeRestoresFirehose(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.AddSubscriber()
	sub.Subscribe(EventBanAdded)
	sub.Unsubscribe(EventBanAdded)

	bus.Publish(EventClientConnected, nil)
	ev := recvEvent(t, sub)
	assert.Equal(t, EventClientConnected, ev.Type)
}

func TestEventBusIgnoresUnknownTypes(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.AddSubscriber()
	sub.Subscribe("made:up")
	bus.Publish("made:up", nil)

	select {
	case ev := <-sub.C:
		t.Fatalf("unknown event type delivered: %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusDropsWhenBufferFull(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.AddSubscriber()
	for i := 0; i < bus.bufferSize+10; i++ {
		bus.Publish(EventMetricsUpdate, i)
	}

	// The buffer holds exactly bufferSize events; the rest were dropped
	// without blocking Publish.
	assert.Len(t, sub.ch, bus.bufferSize)
}

func TestEventBusRemoveSubscriberClosesChannel(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.AddSubscriber()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.RemoveSubscriber(sub.ID)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after removal must not panic.
	bus.Publish(EventClientConnected, nil)
}

func TestKnownEvent(t *testing.T) {
	assert.True(t, KnownEvent(EventMetricsUpdate))
	assert.False(t, KnownEvent("nope"))
}
