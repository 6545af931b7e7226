package executions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/database"
	"github.com/watzon/lambdev/internal/scheduler"
)

// Logger records invocations as they pass through the scheduler. A nil
// Logger records nothing.
type Logger struct {
	store       *Store
	retention   time.Duration
	interval    time.Duration
	maxBodySize int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewLogger creates a new invocation logger.
func NewLogger(db *database.DB, cfg *config.HistoryConfig) *Logger {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Logger{
		store:       NewStore(db),
		retention:   cfg.Retention,
		interval:    interval,
		maxBodySize: cfg.MaxBodySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Store returns the underlying record store.
func (l *Logger) Store() *Store {
	if l == nil {
		return nil
	}
	return l.store
}

// Start begins background cleanup when a retention period is configured.
func (l *Logger) Start() {
	if l == nil || l.retention <= 0 {
		return
	}
	l.wg.Add(1)
	go l.cleanupLoop()
}

// Stop gracefully shuts down the logger.
func (l *Logger) Stop() {
	if l == nil {
		return
	}
	l.cancel()
	l.wg.Wait()
}

// Wrap records inv as pending, runs execute and stores its outcome. Recording
// failures are logged and never affect the invocation itself.
func (l *Logger) Wrap(ctx context.Context, inv *scheduler.Invocation, execute func() (scheduler.Response, error)) (scheduler.Response, error) {
	if l == nil {
		return execute()
	}

	// Records must be written even if the caller has gone away.
	dbCtx := context.WithoutCancel(ctx)

	rec := &Record{
		ID:        inv.ID,
		Function:  inv.Function,
		Trigger:   string(inv.Metadata.Trigger),
		TraceID:   inv.Metadata.TraceID,
		Status:    StatusPending,
		StartedAt: inv.ReceivedAt,
		Request:   l.truncate(inv.Payload),
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	created := true
	if err := l.store.Create(dbCtx, rec); err != nil {
		created = false
		log.Error().Err(err).Str("invocation_id", inv.ID).Msg("Failed to record invocation")
	}

	resp, execErr := execute()

	if !created {
		return resp, execErr
	}

	completed := time.Now()
	rec.CompletedAt = &completed
	rec.DurationMs = int(completed.Sub(rec.StartedAt).Milliseconds())
	l.applyOutcome(rec, resp, execErr)

	if err := l.store.Update(dbCtx, rec); err != nil {
		log.Error().Err(err).Str("invocation_id", inv.ID).Msg("Failed to update invocation record")
	} else {
		log.Debug().
			Str("invocation_id", rec.ID).
			Str("function", rec.Function).
			Str("status", string(rec.Status)).
			Int("duration_ms", rec.DurationMs).
			Msg("Invocation recorded")
	}

	return resp, execErr
}

func (l *Logger) applyOutcome(rec *Record, resp scheduler.Response, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		rec.Status = StatusTimedOut
		rec.ErrorType = "TimeoutError"
		rec.ErrorMessage = err.Error()
	case err != nil:
		rec.Status = StatusCanceled
		rec.ErrorMessage = err.Error()
	case resp.Failed():
		rec.Status = StatusError
		rec.ErrorType = resp.Error.Type
		rec.ErrorMessage = resp.Error.Message
		rec.Response = l.truncate(resp.Error.Payload)
	default:
		rec.Status = StatusSuccess
		rec.Response = l.truncate(resp.Payload)
	}
}

func (l *Logger) truncate(body []byte) string {
	if l.maxBodySize > 0 && len(body) > l.maxBodySize {
		return string(body[:l.maxBodySize])
	}
	return string(body)
}

// cleanupLoop periodically removes old records.
func (l *Logger) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(l.ctx)
		}
	}
}

// Cleanup deletes records older than the retention period.
func (l *Logger) Cleanup(ctx context.Context) {
	deleted, err := l.store.DeleteOlderThan(ctx, l.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up invocation history")
		return
	}
	if deleted > 0 {
		log.Debug().Int64("deleted", deleted).Msg("Cleaned up invocation history")
	}
}
