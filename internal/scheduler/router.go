package scheduler

import "sync"

// spentIDCapacity bounds how many finished invocation ids are remembered.
const spentIDCapacity = 4096

// Router hands computed responses back to the callers waiting on them.
// An id that has been completed or cancelled cannot be registered again while
// it is among the most recent spentIDCapacity finished ids.
type Router struct {
	pending map[string]chan Response
	spent   map[string]struct{}
	// ring holds spent ids in retirement order; next is the slot to overwrite.
	ring []string
	next int
	mu   sync.Mutex
}

// NewRouter creates an empty response router.
func NewRouter() *Router {
	return newRouter(spentIDCapacity)
}

func newRouter(capacity int) *Router {
	return &Router{
		pending: make(map[string]chan Response),
		spent:   make(map[string]struct{}, capacity),
		ring:    make([]string, capacity),
	}
}

// retire must be called with mu held.
func (r *Router) retire(id string) {
	if len(r.ring) == 0 {
		return
	}
	if _, ok := r.spent[id]; ok {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.spent, old)
	}
	r.ring[r.next] = id
	r.spent[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}

// Register creates the one-shot channel a caller blocks on for invocation id.
func (r *Router) Register(id string) (<-chan Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[id]; exists {
		return nil, ErrDuplicateInvocation
	}
	if _, used := r.spent[id]; used {
		return nil, ErrDuplicateInvocation
	}

	ch := make(chan Response, 1)
	r.pending[id] = ch
	return ch, nil
}

// Complete delivers a response to the caller waiting on id. It returns false when
// nobody is waiting, which happens after a timeout or on a duplicate completion.
func (r *Router) Complete(id string, resp Response) bool {
	r.mu.Lock()
	ch, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		r.retire(id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	// Capacity one and removed from the map, so this never blocks.
	ch <- resp
	close(ch)
	return true
}

// Cancel drops the entry for id without delivering anything.
func (r *Router) Cancel(id string) {
	r.mu.Lock()
	if _, ok := r.pending[id]; ok {
		delete(r.pending, id)
		r.retire(id)
	}
	r.mu.Unlock()
}

// Pending returns the number of callers still waiting.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
