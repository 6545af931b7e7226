// Package executions records invocation history in SQLite.
package executions

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("invocation record not found")

// Status represents the outcome of an invocation.
type Status string

const (
	// StatusPending indicates the invocation is queued or running.
	StatusPending Status = "pending"
	// StatusSuccess indicates the function returned a result.
	StatusSuccess Status = "success"
	// StatusError indicates the function reported an error.
	StatusError Status = "error"
	// StatusTimedOut indicates no result arrived before the caller's deadline.
	StatusTimedOut Status = "timed_out"
	// StatusCanceled indicates the caller went away or the invocation could not be queued.
	StatusCanceled Status = "canceled"
)

// Record is one invocation history entry.
type Record struct {
	ID           string     `json:"id"`
	Function     string     `json:"function"`
	Trigger      string     `json:"trigger"`
	TraceID      string     `json:"trace_id,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int        `json:"duration_ms"`
	Request      string     `json:"request,omitempty"`
	Response     string     `json:"response,omitempty"`
	ErrorType    string     `json:"error_type,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Filter narrows a List query.
type Filter struct {
	Function string
	Status   Status
	Trigger  string
	Limit    int
	Offset   int
}
