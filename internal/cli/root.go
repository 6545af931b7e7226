// Package cli implements the lambdev command line.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/lambdev/internal/config"
)

var (
	cfgFile string
	verbose bool

	// version is set at build time with -ldflags "-X github.com/watzon/lambdev/internal/cli.version=...".
	version = "0.1.0-dev"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lambdev",
	Short: "Run AWS Lambda functions locally",
	Long: `lambdev emulates the AWS Lambda invocation runtime on your machine.

Functions are started on first invocation and speak the Lambda Runtime API
to lambdev, exactly as they would in AWS. Invoke them through the Lambda
Invoke API, a function URL, or a cron schedule.

Start the emulator:
  lambdev start

Invoke a function:
  lambdev invoke hello --data '{"name":"world"}'`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(nil)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lambdev.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads the configuration and reconfigures logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}

	setupLogging(&cfg.Logging)

	if path, err := config.ConfigFilePath(cfgFile); err == nil {
		log.Debug().Str("file", path).Msg("Using config file")
	}

	return cfg, nil
}

// setupLogging configures zerolog. Before the config is loaded cfg is nil and
// only the verbose flag applies.
func setupLogging(cfg *config.LoggingConfig) {
	level := zerolog.InfoLevel
	if cfg != nil {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg != nil && cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		// Pretty console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := logger.With()
	if cfg == nil || cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg != nil && cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("lambdev version %s", version)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
