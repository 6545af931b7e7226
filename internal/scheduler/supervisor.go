package scheduler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/events"
	"github.com/watzon/lambdev/internal/metrics"
)

const (
	// DefaultFunctionVersion is reported to every function as AWS_LAMBDA_FUNCTION_VERSION.
	DefaultFunctionVersion = "1"
	// DefaultMemoryMB is reported as AWS_LAMBDA_FUNCTION_MEMORY_SIZE.
	DefaultMemoryMB = 4096
	// DefaultRegion is reported as AWS_REGION.
	DefaultRegion = "us-east-1"
)

// Identity is the synthetic execution identity handed to every function process.
type Identity struct {
	Version  string
	MemoryMB int
	Region   string
}

func (id Identity) withDefaults() Identity {
	if id.Version == "" {
		id.Version = DefaultFunctionVersion
	}
	if id.MemoryMB <= 0 {
		id.MemoryMB = DefaultMemoryMB
	}
	if id.Region == "" {
		id.Region = DefaultRegion
	}
	return id
}

// Supervisor owns the process of one function.
type Supervisor struct {
	activation Activation
	identity   Identity
	resolver   CommandResolver
	launcher   Launcher
	bus        *events.Bus
	gc         chan<- string
	reload     <-chan struct{}
}

// NewSupervisor creates a supervisor. gc receives the function name once if the
// process exits on its own; reload requests an in-place restart.
func NewSupervisor(activation Activation, identity Identity, resolver CommandResolver, launcher Launcher, bus *events.Bus, gc chan<- string, reload <-chan struct{}) *Supervisor {
	return &Supervisor{
		activation: activation,
		identity:   identity.withDefaults(),
		resolver:   resolver,
		launcher:   launcher,
		bus:        bus,
		gc:         gc,
		reload:     reload,
	}
}

// Run starts the process and blocks until it exits or ctx is cancelled.
// It returns a *SpawnError if the process could not be started; every other
// outcome is handled here and reported as nil.
func (s *Supervisor) Run(ctx context.Context) error {
	name := s.activation.Function

	log.Info().
		Str("function", name).
		Str("runtime_api", s.activation.RuntimeAPI).
		Msg("Starting function")

	proc, err := s.start()
	if err != nil {
		metrics.RecordFunctionStart(name, "failed")
		s.bus.Publish(&events.Event{
			Type:     events.EventFunctionSpawnFailed,
			Function: name,
			Data:     map[string]any{"error": err.Error()},
		})
		return &SpawnError{Function: name, Err: err}
	}
	metrics.RecordFunctionStart(name, "started")
	s.bus.Publish(&events.Event{
		Type:     events.EventFunctionStarted,
		Function: name,
		Data:     map[string]any{"pid": proc.PID()},
	})

	for {
		exited := make(chan error, 1)
		go func(p Process) {
			exited <- p.Wait()
		}(proc)

		select {
		case waitErr := <-exited:
			logExit(name, waitErr)
			s.bus.Publish(&events.Event{
				Type:     events.EventFunctionExited,
				Function: name,
				Data:     map[string]any{"exit_code": exitCode(waitErr)},
			})
			s.notifyExit(ctx)
			return nil

		case <-ctx.Done():
			log.Info().Str("function", name).Msg("Terminating function")
			s.terminate(proc, exited)
			s.bus.Publish(&events.Event{Type: events.EventFunctionStopped, Function: name})
			return nil

		case <-s.reload:
			log.Info().Str("function", name).Msg("Reloading function")
			s.terminate(proc, exited)

			proc, err = s.start()
			if err != nil {
				log.Error().Err(err).Str("function", name).Msg("Failed to restart function")
				metrics.RecordFunctionStart(name, "failed")
				s.bus.Publish(&events.Event{
					Type:     events.EventFunctionSpawnFailed,
					Function: name,
					Data:     map[string]any{"error": err.Error()},
				})
				s.notifyExit(ctx)
				return nil
			}
			metrics.RecordFunctionStart(name, "reloaded")
			s.bus.Publish(&events.Event{
				Type:     events.EventFunctionReloaded,
				Function: name,
				Data:     map[string]any{"pid": proc.PID()},
			})
		}
	}
}

func (s *Supervisor) start() (Process, error) {
	cmd, err := s.resolver.Resolve(s.activation.Function)
	if err != nil {
		return nil, err
	}

	spec := ProcessSpec{
		Function: s.activation.Function,
		Args:     cmd.Args,
		Dir:      cmd.Dir,
		Env:      s.environment(cmd),
	}

	proc, err := s.launcher.Launch(spec)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("function", s.activation.Function).
		Strs("args", cmd.Args).
		Int("pid", proc.PID()).
		Msg("Function process started")

	return proc, nil
}

// terminate kills the process and waits for the Wait goroutine to observe the exit.
func (s *Supervisor) terminate(proc Process, exited <-chan error) {
	if err := proc.Kill(); err != nil {
		log.Warn().Err(err).Str("function", s.activation.Function).Msg("Failed to kill function process")
	}
	<-exited
}

func (s *Supervisor) notifyExit(ctx context.Context) {
	select {
	case s.gc <- s.activation.Function:
	case <-ctx.Done():
	}
}

func (s *Supervisor) environment(cmd *Command) []string {
	memory := s.identity.MemoryMB
	if cmd.MemoryMB > 0 {
		memory = cmd.MemoryMB
	}

	env := os.Environ()

	keys := make([]string, 0, len(cmd.Env))
	for k := range cmd.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+cmd.Env[k])
	}

	return append(env,
		"AWS_LAMBDA_RUNTIME_API="+s.activation.RuntimeAPI,
		"AWS_LAMBDA_FUNCTION_NAME="+s.activation.Function,
		"AWS_LAMBDA_FUNCTION_VERSION="+s.identity.Version,
		"AWS_LAMBDA_FUNCTION_MEMORY_SIZE="+strconv.Itoa(memory),
		"AWS_REGION="+s.identity.Region,
		"AWS_DEFAULT_REGION="+s.identity.Region,
	)
}

func logExit(function string, err error) {
	if err == nil {
		log.Info().Str("function", function).Msg("Function exited")
		return
	}
	log.Warn().
		Err(err).
		Str("function", function).
		Int("exit_code", exitCode(err)).
		Msg("Function exited with error")
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
