// Package requestctx carries per-request details between middleware and handlers.
package requestctx

import (
	"context"
	"sync"
	"time"
)

type contextKey struct{}

// Info describes one HTTP request. Handlers annotate it with the function and
// invocation they served so the access log can report them.
type Info struct {
	ID        string
	StartedAt time.Time

	mu           sync.Mutex
	function     string
	invocationID string
}

// New attaches a fresh Info to ctx.
func New(ctx context.Context, id string, startedAt time.Time) (context.Context, *Info) {
	info := &Info{ID: id, StartedAt: startedAt}
	return context.WithValue(ctx, contextKey{}, info), info
}

// From returns the Info attached to ctx, or nil.
func From(ctx context.Context) *Info {
	info, _ := ctx.Value(contextKey{}).(*Info)
	return info
}

// RequestID returns the request id attached to ctx.
func RequestID(ctx context.Context) string {
	if info := From(ctx); info != nil {
		return info.ID
	}
	return ""
}

// Annotate records the function and invocation served by the request.
// It is a no-op when ctx carries no Info.
func Annotate(ctx context.Context, function, invocationID string) {
	info := From(ctx)
	if info == nil {
		return
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	if function != "" {
		info.function = function
	}
	if invocationID != "" {
		info.invocationID = invocationID
	}
}

// Function returns the annotated function name.
func (i *Info) Function() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.function
}

// InvocationID returns the annotated invocation id.
func (i *Info) InvocationID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.invocationID
}
