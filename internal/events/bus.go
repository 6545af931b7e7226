// Package events provides an in-process broadcast of function and invocation lifecycle events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultBufferSize = 64

// Bus fans events out to subscribers. Subscribers that fall behind miss events
// rather than blocking publishers.
type Bus struct {
	subscribers map[int]chan *Event
	nextID      int
	bufferSize  int
	mu          sync.RWMutex
}

// NewBus creates a bus whose subscriber channels hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{
		subscribers: make(map[int]chan *Event),
		bufferSize:  bufferSize,
	}
}

// Publish broadcasts an event. A nil bus discards it.
func (b *Bus) Publish(event *Event) {
	if b == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			log.Debug().
				Int("subscriber", id).
				Str("type", string(event.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Subscribe returns a channel of future events and a function that unsubscribes
// and closes the channel.
func (b *Bus) Subscribe() (<-chan *Event, func()) {
	ch := make(chan *Event, b.bufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
