package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/events"
	"github.com/watzon/lambdev/internal/metrics"
)

const (
	inboundBufferSize = 100
	gcBufferSize      = 10
)

// OrphanErrorType is the error type delivered to callers whose invocation was
// still queued when its function process went away.
const OrphanErrorType = "Runtime.ExitError"

// Config holds the scheduler's collaborators.
type Config struct {
	Resolver CommandResolver
	Launcher Launcher
	Identity Identity
	Bus      *events.Bus
	// FailOrphaned delivers an error to callers whose queued invocations are
	// discarded. When false those callers are left waiting for their own timeout.
	FailOrphaned bool
}

// Scheduler accepts invocations, starts function processes on demand and routes
// their responses back to waiting callers.
type Scheduler struct {
	registry *Registry
	router   *Router
	cfg      Config

	inbound     chan *Invocation
	gc          chan string
	spawnFailed chan string
	reloads     chan string
	done        chan struct{}

	// supervisors is owned by the Run goroutine.
	supervisors map[string]chan struct{}
	wg          sync.WaitGroup
}

// New creates a scheduler. Run must be called for invocations to be dispatched.
func New(registry *Registry, router *Router, cfg Config) *Scheduler {
	if cfg.Launcher == nil {
		cfg.Launcher = NewExecLauncher()
	}

	return &Scheduler{
		registry:    registry,
		router:      router,
		cfg:         cfg,
		inbound:     make(chan *Invocation, inboundBufferSize),
		gc:          make(chan string, gcBufferSize),
		spawnFailed: make(chan string, gcBufferSize),
		reloads:     make(chan string, gcBufferSize),
		done:        make(chan struct{}),
		supervisors: make(map[string]chan struct{}),
	}
}

// Registry returns the function registry.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Router returns the response router.
func (s *Scheduler) Router() *Router {
	return s.router
}

// Submit enqueues an invocation and returns the channel its response arrives on.
func (s *Scheduler) Submit(ctx context.Context, inv *Invocation) (<-chan Response, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	ch, err := s.router.Register(inv.ID)
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, inv); err != nil {
		s.router.Cancel(inv.ID)
		return nil, err
	}

	metrics.SetPendingResponses(s.router.Pending())
	return ch, nil
}

// Dispatch enqueues an invocation whose response nobody waits for.
func (s *Scheduler) Dispatch(ctx context.Context, inv *Invocation) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	return s.enqueue(ctx, inv)
}

func (s *Scheduler) enqueue(ctx context.Context, inv *Invocation) error {
	select {
	case <-s.done:
		return ErrSchedulerStopped
	default:
	}

	select {
	case s.inbound <- inv:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSchedulerStopped
	}

	metrics.RecordInvocationQueued(inv.Function, string(inv.Metadata.Trigger))
	s.cfg.Bus.Publish(&events.Event{
		Type:         events.EventInvocationQueued,
		Function:     inv.Function,
		InvocationID: inv.ID,
		Data:         map[string]any{"trigger": string(inv.Metadata.Trigger)},
	})
	return nil
}

// Invoke submits an invocation and waits for its response until ctx is done.
// On timeout or cancellation the caller's registration is dropped, so a late
// response is discarded.
func (s *Scheduler) Invoke(ctx context.Context, inv *Invocation) (Response, error) {
	ch, err := s.Submit(ctx, inv)
	if err != nil {
		return Response{}, err
	}

	select {
	case resp := <-ch:
		status := "success"
		if resp.Failed() {
			status = "error"
		}
		s.completed(inv, status)
		return resp, nil

	case <-ctx.Done():
		s.Abandon(inv.ID)
		status := "canceled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		s.completed(inv, status)
		return Response{}, ctx.Err()
	}
}

func (s *Scheduler) completed(inv *Invocation, status string) {
	metrics.RecordInvocationCompleted(inv.Function, status, time.Since(inv.ReceivedAt))
	s.cfg.Bus.Publish(&events.Event{
		Type:         events.EventInvocationCompleted,
		Function:     inv.Function,
		InvocationID: inv.ID,
		Data: map[string]any{
			"status":      status,
			"duration_ms": time.Since(inv.ReceivedAt).Milliseconds(),
		},
	})
}

// Abandon stops waiting for an invocation's response, e.g. after a caller timeout.
func (s *Scheduler) Abandon(id string) {
	s.router.Cancel(id)
	metrics.SetPendingResponses(s.router.Pending())
}

// Next returns the next queued invocation for a function without blocking.
func (s *Scheduler) Next(function string) (*Invocation, error) {
	return s.registry.Pop(function)
}

// Wait blocks until an invocation is queued for function or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, function string) (*Invocation, error) {
	for {
		q, ok := s.registry.Queue(function)
		if !ok {
			return nil, ErrFunctionNotFound
		}

		if inv, ok := q.Pop(); ok {
			return inv, nil
		}

		select {
		case <-q.Ready():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Complete delivers a function's response. It returns false when no caller is waiting.
func (s *Scheduler) Complete(id string, resp Response) bool {
	delivered := s.router.Complete(id, resp)
	metrics.SetPendingResponses(s.router.Pending())
	return delivered
}

// Reload asks the running process of function to restart. It is a no-op if the
// function is not running.
func (s *Scheduler) Reload(function string) {
	select {
	case s.reloads <- function:
	case <-s.done:
	}
}

// ReloadAll restarts every running function.
func (s *Scheduler) ReloadAll() {
	for _, status := range s.registry.Snapshot() {
		s.Reload(status.Function)
	}
}

// Run drives the scheduler until ctx is cancelled. It returns after every
// function process has been terminated.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Msg("Scheduler started")

	defer func() {
		s.wg.Wait()
		close(s.done)
		metrics.SetActiveFunctions(0)
		log.Info().Msg("Scheduler stopped")
	}()

	for {
		select {
		case inv := <-s.inbound:
			s.accept(ctx, inv)

		case name := <-s.gc:
			log.Debug().Str("function", name).Msg("Cleaning up stopped function")
			s.collect(name)

		case name := <-s.spawnFailed:
			s.collect(name)

		case name := <-s.reloads:
			s.requestReload(name)

		case <-ctx.Done():
			log.Info().Msg("Terminating scheduler")
			return nil
		}
	}
}

func (s *Scheduler) accept(ctx context.Context, inv *Invocation) {
	activation, created := s.registry.Upsert(inv)
	if !created {
		return
	}

	reload := make(chan struct{}, 1)
	s.supervisors[activation.Function] = reload
	metrics.SetActiveFunctions(len(s.supervisors))

	sup := NewSupervisor(activation, s.cfg.Identity, s.cfg.Resolver, s.cfg.Launcher, s.cfg.Bus, s.gc, reload)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := sup.Run(ctx)
		if err == nil {
			return
		}

		var spawnErr *SpawnError
		if errors.As(err, &spawnErr) {
			log.Error().Err(spawnErr.Err).Str("function", activation.Function).Msg("Failed to start function")
		} else {
			log.Error().Err(err).Str("function", activation.Function).Msg("Function supervisor failed")
		}

		select {
		case s.spawnFailed <- activation.Function:
		case <-ctx.Done():
		}
	}()
}

// collect removes a stopped function and deals with the invocations it left behind.
func (s *Scheduler) collect(function string) {
	delete(s.supervisors, function)
	metrics.SetActiveFunctions(len(s.supervisors))

	orphans := s.registry.Remove(function)
	if len(orphans) == 0 {
		return
	}

	log.Warn().
		Str("function", function).
		Int("count", len(orphans)).
		Bool("failed", s.cfg.FailOrphaned).
		Msg("Discarding queued invocations")
	metrics.RecordInvocationsDropped(function, len(orphans))

	for _, inv := range orphans {
		s.cfg.Bus.Publish(&events.Event{
			Type:         events.EventInvocationDropped,
			Function:     function,
			InvocationID: inv.ID,
		})

		if !s.cfg.FailOrphaned {
			continue
		}
		s.Complete(inv.ID, Response{
			Error: &FunctionError{
				Type:    OrphanErrorType,
				Message: "function " + function + " stopped before handling the invocation",
			},
		})
	}
}

func (s *Scheduler) requestReload(function string) {
	reload, ok := s.supervisors[function]
	if !ok {
		return
	}
	select {
	case reload <- struct{}{}:
	default:
		// A reload is already pending.
	}
}
