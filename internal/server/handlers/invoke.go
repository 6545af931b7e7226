package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/executions"
	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/requestctx"
	"github.com/watzon/lambdev/internal/scheduler"
)

// Invocation types accepted in X-Amz-Invocation-Type.
const (
	InvocationTypeRequestResponse = "RequestResponse"
	InvocationTypeEvent           = "Event"
	InvocationTypeDryRun          = "DryRun"
)

// Invoker creates invocations and runs them through the scheduler, recording
// each one in the history when it is enabled.
type Invoker struct {
	scheduler *scheduler.Scheduler
	catalog   *functions.Catalog
	history   *executions.Logger
	cfg       *config.FunctionsConfig

	// ctx bounds asynchronous invocations; it is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInvoker creates an invoker. history may be nil.
func NewInvoker(sched *scheduler.Scheduler, catalog *functions.Catalog, history *executions.Logger, cfg *config.FunctionsConfig) *Invoker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Invoker{
		scheduler: sched,
		catalog:   catalog,
		history:   history,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Timeout returns how long a synchronous invocation of function may take.
func (i *Invoker) Timeout(function string) time.Duration {
	if i.catalog != nil {
		if d := i.catalog.Timeout(function); d > 0 {
			return d
		}
	}
	if i.cfg.Timeout > 0 {
		return i.cfg.Timeout
	}
	return config.DefaultFunctionTimeout
}

// ARN returns the invoked function ARN reported to function.
func (i *Invoker) ARN(function string) string {
	return functions.FunctionARN(i.cfg.Region, i.cfg.AccountID, function)
}

// New builds an invocation with a fresh id. Missing trace ids are generated.
func (i *Invoker) New(function string, payload []byte, meta scheduler.Metadata) *scheduler.Invocation {
	return i.NewWithID(uuid.NewString(), function, payload, meta)
}

// NewWithID is New for callers that need the id before the payload exists.
func (i *Invoker) NewWithID(id, function string, payload []byte, meta scheduler.Metadata) *scheduler.Invocation {
	if meta.TraceID == "" {
		meta.TraceID = scheduler.NewTraceID()
	}
	if meta.InvokedFunctionARN == "" {
		meta.InvokedFunctionARN = i.ARN(function)
	}
	return scheduler.NewInvocation(id, function, payload, meta)
}

// Run submits inv and waits for its response until ctx is done.
func (i *Invoker) Run(ctx context.Context, inv *scheduler.Invocation) (scheduler.Response, error) {
	return i.history.Wrap(ctx, inv, func() (scheduler.Response, error) {
		return i.scheduler.Invoke(ctx, inv)
	})
}

// RunAsync queues inv without a waiting caller. With history enabled the
// outcome is still awaited in the background so it can be recorded.
func (i *Invoker) RunAsync(inv *scheduler.Invocation) error {
	if i.history == nil {
		return i.scheduler.Dispatch(i.ctx, inv)
	}

	if err := i.ctx.Err(); err != nil {
		return scheduler.ErrSchedulerStopped
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()

		ctx, cancel := context.WithTimeout(i.ctx, i.Timeout(inv.Function))
		defer cancel()

		if _, err := i.Run(ctx, inv); err != nil {
			log.Warn().Err(err).Str("function", inv.Function).Str("invocation_id", inv.ID).Msg("Asynchronous invocation failed")
		}
	}()
	return nil
}

// Close cancels outstanding asynchronous invocations and waits for them.
func (i *Invoker) Close() {
	i.cancel()
	i.wg.Wait()
}

// InvokeHandlers serve the Lambda Invoke API.
type InvokeHandlers struct {
	invoker     *Invoker
	version     string
	maxBodySize int64
}

// NewInvokeHandlers creates Invoke API handlers.
func NewInvokeHandlers(invoker *Invoker, version string, maxBodySize int64) *InvokeHandlers {
	return &InvokeHandlers{
		invoker:     invoker,
		version:     version,
		maxBodySize: maxBodySize,
	}
}

// Invoke handles POST /2015-03-31/functions/{function}/invocations.
func (h *InvokeHandlers) Invoke(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	requestctx.Annotate(r.Context(), function, "")

	if err := functions.ValidateName(function); err != nil {
		LambdaError(w, http.StatusBadRequest, "InvalidParameterValueException", err.Error())
		return
	}

	invocationType := r.Header.Get("X-Amz-Invocation-Type")
	if invocationType == "" {
		invocationType = InvocationTypeRequestResponse
	}
	switch invocationType {
	case InvocationTypeRequestResponse, InvocationTypeEvent:
	case InvocationTypeDryRun:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		LambdaError(w, http.StatusBadRequest, "InvalidParameterValueException", "unsupported invocation type "+invocationType)
		return
	}

	meta := scheduler.Metadata{
		TraceID: r.Header.Get("X-Amzn-Trace-Id"),
		Trigger: scheduler.TriggerInvoke,
	}

	if encoded := r.Header.Get("X-Amz-Client-Context"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			LambdaError(w, http.StatusBadRequest, "InvalidParameterValueException", "client context must be base64 encoded")
			return
		}
		meta.ClientContext = string(decoded)
	}

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			LambdaError(w, http.StatusRequestEntityTooLarge, "RequestTooLargeException",
				"request payload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		LambdaError(w, http.StatusBadRequest, "InvalidRequestContentException", "failed to read request body")
		return
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	if invocationType == InvocationTypeEvent {
		inv := h.invoker.New(function, payload, meta)
		requestctx.Annotate(r.Context(), "", inv.ID)

		if err := h.invoker.RunAsync(inv); err != nil {
			h.failed(w, err)
			return
		}
		w.Header().Set("X-Amzn-RequestId", inv.ID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.invoker.Timeout(function))
	defer cancel()

	meta.Deadline, _ = ctx.Deadline()
	inv := h.invoker.New(function, payload, meta)
	requestctx.Annotate(r.Context(), "", inv.ID)

	resp, err := h.invoker.Run(ctx, inv)

	w.Header().Set("X-Amzn-RequestId", inv.ID)
	if err != nil {
		h.failed(w, err)
		return
	}

	w.Header().Set("X-Amz-Executed-Version", h.version)
	w.Header().Set("Content-Type", "application/json")

	if resp.Failed() {
		w.Header().Set("X-Amz-Function-Error", "Unhandled")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(errorBody(resp.Error))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Payload)
}

func (h *InvokeHandlers) failed(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		JSON(w, http.StatusGatewayTimeout, scheduler.FunctionError{
			Type:    "TimeoutError",
			Message: "function did not respond in time",
		})
	case errors.Is(err, context.Canceled):
		// The caller disconnected; nobody reads this.
		w.WriteHeader(http.StatusRequestTimeout)
	case errors.Is(err, scheduler.ErrSchedulerStopped):
		LambdaError(w, http.StatusServiceUnavailable, "ServiceException", "server is shutting down")
	case errors.Is(err, scheduler.ErrDuplicateInvocation):
		LambdaError(w, http.StatusConflict, "ResourceConflictException", err.Error())
	default:
		log.Error().Err(err).Msg("Invocation failed")
		LambdaError(w, http.StatusInternalServerError, "ServiceException", err.Error())
	}
}

// errorBody returns the document a function posted for its error, or a
// synthesized one.
func errorBody(fnErr *scheduler.FunctionError) []byte {
	if len(fnErr.Payload) > 0 && json.Valid(fnErr.Payload) {
		return fnErr.Payload
	}
	data, _ := json.Marshal(fnErr)
	return data
}
