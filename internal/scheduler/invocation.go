// Package scheduler routes Lambda invocations to lazily started function processes.
//
// Each function gets a FIFO queue that its process drains through the Runtime API,
// a supervisor that owns the process, and a response router that hands results back
// to whichever caller is still waiting on them.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFunctionNotFound is returned when a function has no queue, i.e. no running process.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrDuplicateInvocation is returned when an invocation ID is already awaiting a response.
	ErrDuplicateInvocation = errors.New("duplicate invocation id")
	// ErrSchedulerStopped is returned when submitting to a scheduler that is shutting down.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// Trigger identifies what produced an invocation.
type Trigger string

const (
	// TriggerInvoke is a call through the Lambda Invoke API.
	TriggerInvoke Trigger = "invoke"
	// TriggerURL is a call through a function URL.
	TriggerURL Trigger = "url"
	// TriggerSchedule is a cron trigger.
	TriggerSchedule Trigger = "schedule"
)

// Metadata carries the receipt details a function process sees in Runtime API headers.
type Metadata struct {
	ClientContext      string
	CognitoIdentity    string
	TraceID            string
	InvokedFunctionARN string
	Deadline           time.Time
	Trigger            Trigger
}

// Invocation is one pending request for a function. It is never mutated after creation.
type Invocation struct {
	ID         string
	Function   string
	Payload    []byte
	Metadata   Metadata
	ReceivedAt time.Time
}

// NewInvocation creates an invocation record.
func NewInvocation(id, function string, payload []byte, meta Metadata) *Invocation {
	return &Invocation{
		ID:         id,
		Function:   function,
		Payload:    payload,
		Metadata:   meta,
		ReceivedAt: time.Now(),
	}
}

// NewTraceID returns an X-Ray style trace header value for a new invocation.
func NewTraceID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("Root=1-%08x-%s;Sampled=0", time.Now().Unix(), id[:24])
}

// Validate checks the fields the scheduler depends on.
func (inv *Invocation) Validate() error {
	if inv.ID == "" {
		return errors.New("invocation id is required")
	}
	if inv.Function == "" {
		return errors.New("function name is required")
	}
	return nil
}

// FunctionError is the error a function reported instead of a result.
type FunctionError struct {
	Type    string `json:"errorType"`
	Message string `json:"errorMessage"`
	// Payload is the raw error document posted by the function, if any.
	Payload []byte `json:"-"`
}

func (e *FunctionError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Response is the outcome of an invocation.
type Response struct {
	Payload []byte
	Error   *FunctionError
}

// Failed reports whether the function returned an error.
func (r Response) Failed() bool {
	return r.Error != nil
}
