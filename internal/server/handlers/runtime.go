package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/requestctx"
	"github.com/watzon/lambdev/internal/scheduler"
)

// Runtime API headers sent with each invocation.
const (
	HeaderRequestID          = "Lambda-Runtime-Aws-Request-Id"
	HeaderDeadlineMs         = "Lambda-Runtime-Deadline-Ms"
	HeaderInvokedFunctionARN = "Lambda-Runtime-Invoked-Function-Arn"
	HeaderTraceID            = "Lambda-Runtime-Trace-Id"
	HeaderClientContext      = "Lambda-Runtime-Client-Context"
	HeaderCognitoIdentity    = "Lambda-Runtime-Cognito-Identity"
	HeaderFunctionErrorType  = "Lambda-Runtime-Function-Error-Type"
)

// RuntimeHandlers serve the Runtime API polled by function processes.
type RuntimeHandlers struct {
	scheduler   *scheduler.Scheduler
	maxBodySize int64
	timeout     func(function string) time.Duration
}

// NewRuntimeHandlers creates Runtime API handlers. timeout gives the deadline
// reported for invocations that carry none.
func NewRuntimeHandlers(sched *scheduler.Scheduler, maxBodySize int64, timeout func(string) time.Duration) *RuntimeHandlers {
	return &RuntimeHandlers{
		scheduler:   sched,
		maxBodySize: maxBodySize,
		timeout:     timeout,
	}
}

// Next long-polls for the function's next invocation.
func (h *RuntimeHandlers) Next(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	requestctx.Annotate(r.Context(), function, "")

	inv, err := h.scheduler.Wait(r.Context(), function)
	switch {
	case errors.Is(err, scheduler.ErrFunctionNotFound):
		NotFound(w, "function "+function+" is not running")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The process went away while polling.
		return
	case err != nil:
		InternalError(w, err.Error())
		return
	}

	requestctx.Annotate(r.Context(), "", inv.ID)

	deadline := inv.Metadata.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(h.timeout(function))
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/json")
	hdr.Set(HeaderRequestID, inv.ID)
	hdr.Set(HeaderDeadlineMs, strconv.FormatInt(deadline.UnixMilli(), 10))
	hdr.Set(HeaderInvokedFunctionARN, inv.Metadata.InvokedFunctionARN)
	hdr.Set(HeaderTraceID, inv.Metadata.TraceID)
	if inv.Metadata.ClientContext != "" {
		hdr.Set(HeaderClientContext, inv.Metadata.ClientContext)
	}
	if inv.Metadata.CognitoIdentity != "" {
		hdr.Set(HeaderCognitoIdentity, inv.Metadata.CognitoIdentity)
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(inv.Payload); err != nil {
		log.Warn().Err(err).Str("invocation_id", inv.ID).Msg("Failed to deliver invocation")
	}
}

// Response accepts a function's result.
func (h *RuntimeHandlers) Response(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	id := r.PathValue("id")
	requestctx.Annotate(r.Context(), function, id)

	body, err := h.readBody(w, r)
	if err != nil {
		h.bodyError(w, err)
		return
	}

	if !h.scheduler.Complete(id, scheduler.Response{Payload: body}) {
		log.Debug().Str("function", function).Str("invocation_id", id).Msg("No caller waiting for response")
	}

	JSON(w, http.StatusAccepted, accepted)
}

// Error accepts an error reported by a function for one invocation.
func (h *RuntimeHandlers) Error(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	id := r.PathValue("id")
	requestctx.Annotate(r.Context(), function, id)

	body, err := h.readBody(w, r)
	if err != nil {
		h.bodyError(w, err)
		return
	}

	fnErr := parseFunctionError(body, r.Header.Get(HeaderFunctionErrorType))

	log.Debug().
		Str("function", function).
		Str("invocation_id", id).
		Str("error_type", fnErr.Type).
		Str("error_message", fnErr.Message).
		Msg("Function reported an error")

	if !h.scheduler.Complete(id, scheduler.Response{Error: fnErr}) {
		log.Debug().Str("function", function).Str("invocation_id", id).Msg("No caller waiting for error")
	}

	JSON(w, http.StatusAccepted, accepted)
}

// InitError logs a function that failed to initialize. The process is
// expected to exit afterwards.
func (h *RuntimeHandlers) InitError(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	requestctx.Annotate(r.Context(), function, "")

	body, err := h.readBody(w, r)
	if err != nil {
		h.bodyError(w, err)
		return
	}

	fnErr := parseFunctionError(body, r.Header.Get(HeaderFunctionErrorType))
	log.Error().
		Str("function", function).
		Str("error_type", fnErr.Type).
		Str("error_message", fnErr.Message).
		Msg("Function failed to initialize")

	JSON(w, http.StatusAccepted, accepted)
}

func (h *RuntimeHandlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	return io.ReadAll(r.Body)
}

func (h *RuntimeHandlers) bodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		return
	}
	BadRequest(w, "failed to read body")
}

// parseFunctionError builds a FunctionError from a posted error document.
// Bodies that are not JSON are kept as the message.
func parseFunctionError(body []byte, headerType string) *scheduler.FunctionError {
	fnErr := &scheduler.FunctionError{Payload: body}

	if err := json.Unmarshal(body, fnErr); err != nil {
		fnErr.Message = string(body)
	}
	fnErr.Payload = body

	if fnErr.Type == "" {
		fnErr.Type = headerType
	}
	if fnErr.Type == "" {
		fnErr.Type = "Unhandled"
	}
	return fnErr
}
