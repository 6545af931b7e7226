package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/database"
	"github.com/watzon/lambdev/internal/events"
	"github.com/watzon/lambdev/internal/executions"
	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/scheduler"
	"github.com/watzon/lambdev/internal/server"
	"github.com/watzon/lambdev/internal/triggers"
)

const eventBusBuffer = 256

var (
	startPort      int
	startHost      string
	startNoWatch   bool
	startNoHistory bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Lambda emulator",
	Long: `Start the lambdev server.

The server will:
  - Discover functions in the functions directory
  - Serve the Lambda Runtime API to function processes
  - Accept invocations through the Invoke API and function URLs
  - Fire configured cron schedules
  - Restart functions when their sources change

Use --no-watch to disable source watching.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVarP(&startPort, "port", "p", config.DefaultPort, "Port to listen on")
	startCmd.Flags().StringVar(&startHost, "host", config.DefaultHost, "Host to bind to")
	startCmd.Flags().BoolVar(&startNoWatch, "no-watch", false, "Disable source watching")
	startCmd.Flags().BoolVar(&startNoHistory, "no-history", false, "Disable invocation history")

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = startPort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = startHost
	}
	if startNoWatch {
		cfg.Dev.Watch = false
	}
	if startNoHistory {
		cfg.History.Enabled = false
	}

	bus := events.NewBus(eventBusBuffer)

	catalog := functions.NewCatalog(&cfg.Functions)
	if err := catalog.Discover(); err != nil {
		return fmt.Errorf("discovering functions: %w", err)
	}

	var (
		db      *database.DB
		history *executions.Logger
	)
	if cfg.History.Enabled {
		db, err = database.Open(&cfg.History)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer db.Close()

		history = executions.NewLogger(db, &cfg.History)
		history.Start()
		defer history.Stop()
	}

	sched := scheduler.New(
		scheduler.NewRegistry(cfg.Server.RuntimeAddress()),
		scheduler.NewRouter(),
		scheduler.Config{
			Resolver: catalog,
			Identity: scheduler.Identity{
				Version:  cfg.Functions.Version,
				MemoryMB: cfg.Functions.MemoryMB,
				Region:   cfg.Functions.Region,
			},
			Bus:          bus,
			FailOrphaned: cfg.Functions.FailOrphaned,
		},
	)

	runner, err := triggers.NewRunner(cfg.Schedules, sched, triggers.Options{
		Timeout:   cfg.Functions.Timeout,
		Region:    cfg.Functions.Region,
		AccountID: cfg.Functions.AccountID,
		History:   history,
	})
	if err != nil {
		return err
	}

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(schedCtx)
	}()

	var watcher *functions.SourceWatcher
	if cfg.Dev.Watch {
		watcher, err = functions.NewSourceWatcher(catalog, sched, functions.WatchOptions{
			Patterns:    cfg.Dev.WatchPatterns,
			SharedPaths: cfg.Dev.WatchPaths,
			Debounce:    cfg.Dev.Debounce,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up source watcher, continuing without hot-reload")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start source watcher, continuing without hot-reload")
			_ = watcher.Stop()
			watcher = nil
		} else {
			log.Info().Msg("Source watching enabled")
		}
	}

	srv := server.New(cfg, sched, catalog, bus,
		server.WithHistory(db, history),
		server.WithTriggers(runner),
		server.WithWatcher(watcher),
		server.WithVersion(version),
	)

	runner.Start()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	logServerInfo(cfg, catalog, runner)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-sigChan:
		log.Info().Msg("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			runErr = err
		}
	}

	runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}

	stopScheduler()
	<-schedDone

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop source watcher")
		}
	}

	return runErr
}

func logServerInfo(cfg *config.Config, catalog *functions.Catalog, runner *triggers.Runner) {
	base := "http://" + cfg.Server.Address()

	log.Info().
		Str("url", base).
		Str("runtime_api", cfg.Server.RuntimeAddress()).
		Msg("Server started")

	for _, fn := range catalog.List() {
		log.Info().
			Str("function", fn.Name).
			Str("invoke", base+"/2015-03-31/functions/"+fn.Name+"/invocations").
			Str("url", base+"/lambda-url/"+fn.Name+"/").
			Msg("Function endpoint")
	}

	for _, entry := range runner.Entries() {
		log.Info().
			Str("schedule", entry.Name).
			Str("function", entry.Function).
			Str("cron", entry.Cron).
			Time("next", entry.Next).
			Msg("Schedule")
	}

	if cfg.History.Enabled {
		log.Info().
			Str("invocations", base+"/_lambdev/invocations").
			Msg("Invocation history")
	}

	if cfg.Metrics.Enabled {
		log.Info().
			Str("metrics", base+cfg.Metrics.Path).
			Msg("Prometheus metrics")
	}
}
