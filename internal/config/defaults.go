package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 9001
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodySize     = 6 * 1024 * 1024 // Lambda's synchronous payload limit

	// Functions defaults.
	DefaultFunctionsPath   = "cmd"
	DefaultCommand         = "go run ./{dir}"
	DefaultFunctionMemory  = 4096
	DefaultFunctionVersion = "1"
	DefaultRegion          = "us-east-1"
	DefaultAccountID       = "000000000000"
	DefaultFunctionTimeout = 30 * time.Second

	// Dev defaults.
	DefaultDebounce = 300 * time.Millisecond

	// History defaults.
	DefaultHistoryPath     = ".lambdev/history.db"
	DefaultBusyTimeout     = 5 * time.Second
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultHistoryBodySize = 64 * 1024

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Metrics defaults.
	DefaultMetricsPath = "/metrics"
)

// DefaultWatchPatterns are the files that count as function sources.
var DefaultWatchPatterns = []string{"**/*.go", "go.mod", "go.sum"}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxBodySize:     DefaultMaxBodySize,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				ExposedHeaders: []string{"X-Request-ID", "X-Amz-Function-Error"},
				MaxAge:         12 * time.Hour,
			},
		},
		Functions: FunctionsConfig{
			Path:        DefaultFunctionsPath,
			Command:     DefaultCommand,
			Env:         make(map[string]string),
			MemoryMB:    DefaultFunctionMemory,
			Version:     DefaultFunctionVersion,
			Region:      DefaultRegion,
			AccountID:   DefaultAccountID,
			Timeout:     DefaultFunctionTimeout,
			Definitions: make(map[string]FunctionDefinition),
		},
		Dev: DevConfig{
			Watch:         true,
			Debounce:      DefaultDebounce,
			WatchPatterns: append([]string(nil), DefaultWatchPatterns...),
		},
		History: HistoryConfig{
			Enabled:         true,
			Path:            DefaultHistoryPath,
			WALMode:         true,
			BusyTimeout:     DefaultBusyTimeout,
			Retention:       DefaultRetention,
			CleanupInterval: DefaultCleanupInterval,
			MaxBodySize:     DefaultHistoryBodySize,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}
