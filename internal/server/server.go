// Package server exposes the Lambda Runtime and Invoke APIs, function URLs and
// the dev API over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/database"
	"github.com/watzon/lambdev/internal/events"
	"github.com/watzon/lambdev/internal/executions"
	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/scheduler"
	"github.com/watzon/lambdev/internal/server/handlers"
	"github.com/watzon/lambdev/internal/triggers"
)

type Server struct {
	cfg       *config.Config
	scheduler *scheduler.Scheduler
	catalog   *functions.Catalog
	bus       *events.Bus
	db        *database.DB
	history   *executions.Logger
	triggers  *triggers.Runner
	watcher   *functions.SourceWatcher
	invoker   *handlers.Invoker
	version   string

	httpServer *http.Server
	router     *Router

	// baseCtx parents every request so that long-polls end on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

type Option func(*Server)

// WithHistory enables invocation recording and the history endpoints.
func WithHistory(db *database.DB, history *executions.Logger) Option {
	return func(s *Server) {
		s.db = db
		s.history = history
	}
}

// WithTriggers exposes cron schedules in the dev API.
func WithTriggers(runner *triggers.Runner) Option {
	return func(s *Server) {
		s.triggers = runner
	}
}

// WithWatcher lets catalog refreshes start watching newly found functions.
func WithWatcher(watcher *functions.SourceWatcher) Option {
	return func(s *Server) {
		s.watcher = watcher
	}
}

// WithVersion sets the version reported by health and status endpoints.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func New(cfg *config.Config, sched *scheduler.Scheduler, catalog *functions.Catalog, bus *events.Bus, opts ...Option) *Server {
	srv := &Server{
		cfg:       cfg,
		scheduler: sched,
		catalog:   catalog,
		bus:       bus,
		version:   "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.baseCtx, srv.cancelBase = context.WithCancel(context.Background())
	srv.invoker = handlers.NewInvoker(sched, catalog, srv.history, &cfg.Functions)
	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:        cfg.Server.Address(),
		Handler:     srv.router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No write timeout: Runtime API polls and synchronous invokes block
		// for as long as the function takes.
		IdleTimeout: cfg.Server.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return srv.baseCtx
		},
	}

	return srv
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting server")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown releases pending long-polls and invocations, then stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	s.cancelBase()
	s.invoker.Close()

	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Invoker returns the invoker shared by the Invoke API and function URLs.
func (s *Server) Invoker() *handlers.Invoker {
	return s.invoker
}

func (s *Server) Config() *config.Config {
	return s.cfg
}
