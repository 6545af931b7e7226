package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4)

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(&Event{Type: EventFunctionStarted, Function: "hello"})

	event := <-ch
	require.NotNil(t, event)
	assert.Equal(t, EventFunctionStarted, event.Type)
	assert.Equal(t, "hello", event.Function)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Time.IsZero())
}

func TestBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus(1)

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(&Event{Type: EventInvocationQueued, InvocationID: "1"})
	bus.Publish(&Event{Type: EventInvocationQueued, InvocationID: "2"})

	event := <-ch
	assert.Equal(t, "1", event.InvocationID)

	select {
	case extra := <-ch:
		t.Fatalf("expected dropped event, got %v", extra)
	default:
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(1)

	ch, unsubscribe := bus.Subscribe()
	require.Equal(t, 1, bus.Subscribers())

	unsubscribe()
	unsubscribe()

	assert.Equal(t, 0, bus.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	// Publishing with no subscribers must not panic.
	bus.Publish(&Event{Type: EventFunctionExited})
}

func TestBus_NilPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(&Event{Type: EventFunctionExited})
}
