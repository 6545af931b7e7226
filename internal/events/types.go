package events

import "time"

// EventType identifies a lifecycle event.
type EventType string

const (
	// EventFunctionStarted is published when a function process is spawned.
	EventFunctionStarted EventType = "function.started"
	// EventFunctionExited is published when a function process exits on its own.
	EventFunctionExited EventType = "function.exited"
	// EventFunctionSpawnFailed is published when a function process could not be started.
	EventFunctionSpawnFailed EventType = "function.spawn_failed"
	// EventFunctionReloaded is published when a function process is restarted after a source change.
	EventFunctionReloaded EventType = "function.reloaded"
	// EventFunctionStopped is published when a function process is killed on shutdown.
	EventFunctionStopped EventType = "function.stopped"
	// EventInvocationQueued is published when an invocation enters the scheduler.
	EventInvocationQueued EventType = "invocation.queued"
	// EventInvocationCompleted is published when a function posts a result or an error.
	EventInvocationCompleted EventType = "invocation.completed"
	// EventInvocationDropped is published when a queued invocation is discarded.
	EventInvocationDropped EventType = "invocation.dropped"
)

// Event is a single lifecycle notification.
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Function     string         `json:"function"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Time         time.Time      `json:"time"`
}
