package scheduler

import (
	"sort"
	"strings"
	"sync"
)

// Activation tells the scheduler to start a process for a function seen for the first time.
type Activation struct {
	Function string
	// RuntimeAPI is the address the process polls, host:port/<function>.
	RuntimeAPI string
}

// QueueStatus describes one registered function.
type QueueStatus struct {
	Function string `json:"function"`
	Depth    int    `json:"depth"`
}

// Registry maps function names to their queues.
type Registry struct {
	serverAddr string
	queues     map[string]*Queue
	mu         sync.Mutex
}

// NewRegistry creates a registry whose runtime addresses are rooted at serverAddr (host:port).
func NewRegistry(serverAddr string) *Registry {
	return &Registry{
		serverAddr: strings.TrimSuffix(serverAddr, "/"),
		queues:     make(map[string]*Queue),
	}
}

// Upsert enqueues an invocation. The boolean is true only when this call created the
// function's queue, in which case the caller must start its process.
func (r *Registry) Upsert(inv *Invocation) (Activation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[inv.Function]; ok {
		q.Push(inv)
		return Activation{}, false
	}

	q := NewQueue()
	q.Push(inv)
	r.queues[inv.Function] = q

	return Activation{
		Function:   inv.Function,
		RuntimeAPI: r.RuntimeAPI(inv.Function),
	}, true
}

// RuntimeAPI returns the polling address for a function.
func (r *Registry) RuntimeAPI(function string) string {
	return r.serverAddr + "/" + function
}

// Pop returns the next invocation for a function, nil if its queue is empty,
// or ErrFunctionNotFound if the function has no queue.
func (r *Registry) Pop(function string) (*Invocation, error) {
	q, ok := r.Queue(function)
	if !ok {
		return nil, ErrFunctionNotFound
	}

	inv, _ := q.Pop()
	return inv, nil
}

// Queue returns the queue for a function.
func (r *Registry) Queue(function string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[function]
	return q, ok
}

// Remove deletes a function's queue and returns whatever was still queued.
// Removing an absent function is a no-op.
func (r *Registry) Remove(function string) []*Invocation {
	r.mu.Lock()
	q, ok := r.queues[function]
	delete(r.queues, function)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return q.Drain()
}

// Snapshot returns the registered functions and their queue depths, sorted by name.
func (r *Registry) Snapshot() []QueueStatus {
	r.mu.Lock()
	statuses := make([]QueueStatus, 0, len(r.queues))
	queues := make([]*Queue, 0, len(r.queues))
	for name, q := range r.queues {
		statuses = append(statuses, QueueStatus{Function: name})
		queues = append(queues, q)
	}
	r.mu.Unlock()

	for i, q := range queues {
		statuses[i].Depth = q.Len()
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Function < statuses[j].Function
	})
	return statuses
}
