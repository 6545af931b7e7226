// Package triggers invokes functions on cron schedules.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/executions"
	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/scheduler"
)

// ErrScheduleNotFound is returned by Fire for an unknown schedule name.
var ErrScheduleNotFound = errors.New("schedule not found")

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Invoker runs an invocation and waits for its response.
type Invoker interface {
	Invoke(ctx context.Context, inv *scheduler.Invocation) (scheduler.Response, error)
}

// Options configures a Runner.
type Options struct {
	// Timeout bounds each scheduled invocation.
	Timeout   time.Duration
	Region    string
	AccountID string
	// History records scheduled invocations. It may be nil.
	History *executions.Logger
}

// Entry describes a registered schedule.
type Entry struct {
	Name     string    `json:"name"`
	Function string    `json:"function"`
	Cron     string    `json:"cron"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitzero"`
}

type schedule struct {
	cfg     config.ScheduleConfig
	entryID cron.EntryID
}

// Runner fires invocations for configured schedules.
type Runner struct {
	cron      *cron.Cron
	invoker   Invoker
	opts      Options
	schedules map[string]*schedule
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// ParseCron validates a cron expression.
func ParseCron(expression string) (cron.Schedule, error) {
	s, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expression, err)
	}
	return s, nil
}

// NewRunner registers every enabled schedule. It fails if any cron expression
// is invalid.
func NewRunner(schedules []config.ScheduleConfig, invoker Invoker, opts Options) (*Runner, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultFunctionTimeout
	}
	if opts.Region == "" {
		opts.Region = config.DefaultRegion
	}
	if opts.AccountID == "" {
		opts.AccountID = config.DefaultAccountID
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		cron:      cron.New(cron.WithParser(parser)),
		invoker:   invoker,
		opts:      opts,
		schedules: make(map[string]*schedule),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, cfg := range schedules {
		if cfg.Disabled {
			log.Debug().Str("schedule", cfg.Name).Msg("Skipping disabled schedule")
			continue
		}

		spec, err := ParseCron(cfg.Cron)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s: %w", cfg.Name, err)
		}

		s := &schedule{cfg: cfg}
		name := cfg.Name
		s.entryID = r.cron.Schedule(spec, cron.FuncJob(func() {
			r.wg.Add(1)
			defer r.wg.Done()
			r.run(name)
		}))
		r.schedules[name] = s
	}

	return r, nil
}

// Start begins firing schedules.
func (r *Runner) Start() {
	r.cron.Start()
	log.Info().Int("count", len(r.schedules)).Msg("Schedules started")
}

// Stop stops the cron loop, cancels in-flight invocations and waits for them.
func (r *Runner) Stop() {
	stopped := r.cron.Stop()
	r.cancel()
	<-stopped.Done()
	r.wg.Wait()
}

// Entries returns the registered schedules sorted by name.
func (r *Runner) Entries() []Entry {
	entries := make([]Entry, 0, len(r.schedules))
	for name, s := range r.schedules {
		e := r.cron.Entry(s.entryID)
		entries = append(entries, Entry{
			Name:     name,
			Function: s.cfg.Function,
			Cron:     s.cfg.Cron,
			Next:     e.Next,
			Prev:     e.Prev,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Fire runs a schedule immediately.
func (r *Runner) Fire(ctx context.Context, name string) (scheduler.Response, error) {
	s, ok := r.schedules[name]
	if !ok {
		return scheduler.Response{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}
	return r.invoke(ctx, s.cfg, time.Now())
}

func (r *Runner) run(name string) {
	s := r.schedules[name]
	started := time.Now()

	resp, err := r.invoke(r.ctx, s.cfg, started)

	logger := log.With().
		Str("schedule", name).
		Str("function", s.cfg.Function).
		Dur("duration", time.Since(started)).
		Logger()

	switch {
	case err != nil:
		logger.Error().Err(err).Msg("Scheduled invocation failed")
	case resp.Failed():
		logger.Warn().
			Str("error_type", resp.Error.Type).
			Str("error_message", resp.Error.Message).
			Msg("Scheduled invocation returned an error")
	default:
		logger.Info().Msg("Scheduled invocation completed")
	}
}

func (r *Runner) invoke(ctx context.Context, cfg config.ScheduleConfig, at time.Time) (scheduler.Response, error) {
	payload := []byte(cfg.Payload)
	if len(payload) == 0 {
		var err error
		payload, err = ScheduledEvent(cfg.Name, r.opts.Region, r.opts.AccountID, at)
		if err != nil {
			return scheduler.Response{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	inv := scheduler.NewInvocation(uuid.NewString(), cfg.Function, payload, scheduler.Metadata{
		TraceID:            scheduler.NewTraceID(),
		InvokedFunctionARN: functions.FunctionARN(r.opts.Region, r.opts.AccountID, cfg.Function),
		Deadline:           deadline,
		Trigger:            scheduler.TriggerSchedule,
	})

	return r.opts.History.Wrap(ctx, inv, func() (scheduler.Response, error) {
		return r.invoker.Invoke(ctx, inv)
	})
}

// scheduledEvent is the EventBridge event delivered for a scheduled rule.
type scheduledEvent struct {
	Version    string         `json:"version"`
	ID         string         `json:"id"`
	DetailType string         `json:"detail-type"`
	Source     string         `json:"source"`
	Account    string         `json:"account"`
	Time       string         `json:"time"`
	Region     string         `json:"region"`
	Resources  []string       `json:"resources"`
	Detail     map[string]any `json:"detail"`
}

// ScheduledEvent builds the payload EventBridge sends when a rule fires.
func ScheduledEvent(rule, region, accountID string, at time.Time) ([]byte, error) {
	return json.Marshal(scheduledEvent{
		Version:    "0",
		ID:         uuid.NewString(),
		DetailType: "Scheduled Event",
		Source:     "aws.events",
		Account:    accountID,
		Time:       at.UTC().Format(time.RFC3339),
		Region:     region,
		Resources:  []string{functions.RuleARN(region, accountID, rule)},
		Detail:     map[string]any{},
	})
}
