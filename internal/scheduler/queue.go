package scheduler

import "sync"

// Queue is a FIFO buffer of pending invocations for one function.
type Queue struct {
	mu    sync.Mutex
	items []*Invocation
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends an invocation to the tail of the queue.
func (q *Queue) Push(inv *Invocation) {
	q.mu.Lock()
	q.items = append(q.items, inv)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the head of the queue. The boolean is false when the queue is empty.
func (q *Queue) Pop() (*Invocation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	inv := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	// Re-arm the signal so another waiter sees the remaining items.
	if len(q.items) > 0 {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}

	return inv, true
}

// Len returns the number of queued invocations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled after a push. A receive does not guarantee Pop will succeed,
// since another poller may win the race.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every queued invocation in order.
func (q *Queue) Drain() []*Invocation {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}
