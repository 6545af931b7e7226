package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/watzon/lambdev/internal/database"
	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/scheduler"
)

// HealthHandlers report server health.
type HealthHandlers struct {
	db        *database.DB
	scheduler *scheduler.Scheduler
	catalog   *functions.Catalog
	version   string
}

// NewHealthHandlers creates health handlers. db may be nil when history is disabled.
func NewHealthHandlers(db *database.DB, sched *scheduler.Scheduler, catalog *functions.Catalog, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		scheduler: sched,
		catalog:   catalog,
		version:   version,
	}
}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

var startTime = time.Now()

const healthCheckTimeout = 5 * time.Second

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]ComponentHealth{
		"history":   h.checkHistory(ctx),
		"scheduler": h.checkScheduler(),
	}

	overallStatus := HealthStatusHealthy
	if components["history"].Status != HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	JSON(w, http.StatusOK, HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	})
}

func (h *HealthHandlers) checkHistory(ctx context.Context) ComponentHealth {
	if h.db == nil {
		return ComponentHealth{Status: HealthStatusHealthy, Message: "disabled"}
	}

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Latency: time.Since(start).String(),
			Message: "database ping failed",
		}
	}

	version, err := h.db.SchemaVersion(ctx)
	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Latency: time.Since(start).String(),
			Message: "schema version unreadable",
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Latency: time.Since(start).String(),
		Message: fmt.Sprintf("schema v%d", version),
	}
}

// checkScheduler reports running functions and how many callers are waiting.
func (h *HealthHandlers) checkScheduler() ComponentHealth {
	queued := 0
	running := h.scheduler.Registry().Snapshot()
	for _, q := range running {
		queued += q.Depth
	}

	msg := fmt.Sprintf("%d running, %d queued, %d awaiting response",
		len(running), queued, h.scheduler.Router().Pending())
	if h.catalog.Count() == 0 {
		msg += ", no functions discovered"
	}

	return ComponentHealth{Status: HealthStatusHealthy, Message: msg}
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

func (h *HealthHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := map[string]any{
		"runtime": RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     m.Alloc,
			MemSys:       m.Sys,
			NumGC:        m.NumGC,
		},
		"uptime": time.Since(startTime).Round(time.Second).String(),
		"functions": map[string]any{
			"known":             h.catalog.Count(),
			"running":           len(h.scheduler.Registry().Snapshot()),
			"pending_responses": h.scheduler.Router().Pending(),
		},
	}

	if h.db != nil {
		dbStats := h.db.Stats()
		resp["history"] = map[string]any{
			"path":             h.db.Path(),
			"open_connections": dbStats.OpenConnections,
			"wait_count":       dbStats.WaitCount,
			"wait_duration":    dbStats.WaitDuration.String(),
		}
	}

	JSON(w, http.StatusOK, resp)
}
