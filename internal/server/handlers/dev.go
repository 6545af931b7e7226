package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/executions"
	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/requestctx"
	"github.com/watzon/lambdev/internal/scheduler"
	"github.com/watzon/lambdev/internal/triggers"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DevHandlers serve the /_lambdev inspection API.
type DevHandlers struct {
	scheduler *scheduler.Scheduler
	catalog   *functions.Catalog
	invoker   *Invoker
	history   *executions.Logger
	triggers  *triggers.Runner
	version   string
	onRefresh func()
}

// NewDevHandlers creates dev API handlers. history and runner may be nil.
func NewDevHandlers(sched *scheduler.Scheduler, catalog *functions.Catalog, invoker *Invoker, history *executions.Logger, runner *triggers.Runner, version string) *DevHandlers {
	return &DevHandlers{
		scheduler: sched,
		catalog:   catalog,
		invoker:   invoker,
		history:   history,
		triggers:  runner,
		version:   version,
	}
}

// OnRefresh registers a hook run after each successful catalog refresh.
func (h *DevHandlers) OnRefresh(fn func()) {
	h.onRefresh = fn
}

// StatusResponse is the body of GET /_lambdev/status.
type StatusResponse struct {
	Version          string                  `json:"version"`
	Uptime           string                  `json:"uptime"`
	Running          []scheduler.QueueStatus `json:"running"`
	PendingResponses int                     `json:"pending_responses"`
	Schedules        []triggers.Entry        `json:"schedules"`
}

// Status reports running functions, their queue depths and outstanding callers.
func (h *DevHandlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:          h.version,
		Uptime:           time.Since(startTime).Round(time.Second).String(),
		Running:          h.scheduler.Registry().Snapshot(),
		PendingResponses: h.scheduler.Router().Pending(),
		Schedules:        []triggers.Entry{},
	}
	if h.triggers != nil {
		resp.Schedules = h.triggers.Entries()
	}

	JSON(w, http.StatusOK, resp)
}

// FunctionInfo is one entry of GET /_lambdev/functions.
type FunctionInfo struct {
	*functions.FunctionDef
	ARN        string `json:"arn"`
	Running    bool   `json:"running"`
	QueueDepth int    `json:"queue_depth"`
}

// ListFunctions returns the catalog.
func (h *DevHandlers) ListFunctions(w http.ResponseWriter, r *http.Request) {
	running := make(map[string]int)
	for _, status := range h.scheduler.Registry().Snapshot() {
		running[status.Function] = status.Depth
	}

	defs := h.catalog.List()
	result := make([]FunctionInfo, 0, len(defs))
	for _, fn := range defs {
		depth, ok := running[fn.Name]
		result = append(result, FunctionInfo{
			FunctionDef: fn,
			ARN:         h.invoker.ARN(fn.Name),
			Running:     ok,
			QueueDepth:  depth,
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"functions": result,
		"count":     len(result),
	})
}

// ReloadFunction restarts a running function's process.
func (h *DevHandlers) ReloadFunction(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	requestctx.Annotate(r.Context(), function, "")

	if _, ok := h.scheduler.Registry().Queue(function); !ok {
		NotFound(w, "function "+function+" is not running")
		return
	}

	h.scheduler.Reload(function)
	JSON(w, http.StatusAccepted, map[string]string{"status": "reloading"})
}

// RefreshCatalog rediscovers functions on disk.
func (h *DevHandlers) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Reload(); err != nil {
		log.Error().Err(err).Msg("Failed to rediscover functions")
		InternalError(w, err.Error())
		return
	}
	if h.onRefresh != nil {
		h.onRefresh()
	}
	JSON(w, http.StatusOK, map[string]int{"count": h.catalog.Count()})
}

// ListInvocations returns recorded invocations, newest first.
func (h *DevHandlers) ListInvocations(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Error(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "invocation history is disabled")
		return
	}

	q := r.URL.Query()
	filter := executions.Filter{
		Function: q.Get("function"),
		Status:   executions.Status(q.Get("status")),
		Trigger:  q.Get("trigger"),
		Limit:    defaultListLimit,
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			BadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	records, err := h.history.Store().List(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list invocations")
		InternalError(w, "failed to list invocations")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"invocations": records,
		"count":       len(records),
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

// GetInvocation returns one recorded invocation.
func (h *DevHandlers) GetInvocation(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Error(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "invocation history is disabled")
		return
	}

	id := r.PathValue("id")
	rec, err := h.history.Store().Get(r.Context(), id)
	if errors.Is(err, executions.ErrNotFound) {
		NotFound(w, "invocation "+id+" not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("invocation_id", id).Msg("Failed to get invocation")
		InternalError(w, "failed to get invocation")
		return
	}

	JSON(w, http.StatusOK, rec)
}

// FireSchedule runs a schedule immediately and returns the function's result.
func (h *DevHandlers) FireSchedule(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		NotFound(w, "no schedules configured")
		return
	}

	name := r.PathValue("name")
	resp, err := h.triggers.Fire(r.Context(), name)
	switch {
	case errors.Is(err, triggers.ErrScheduleNotFound):
		NotFound(w, err.Error())
		return
	case err != nil:
		Error(w, http.StatusBadGateway, "INVOCATION_FAILED", err.Error())
		return
	}

	result := map[string]any{"schedule": name}
	if resp.Failed() {
		result["error"] = resp.Error
	} else {
		result["payload"] = rawJSON(resp.Payload)
	}
	JSON(w, http.StatusOK, result)
}
