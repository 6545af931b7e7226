// Package config provides configuration management for lambdev.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for lambdev.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Functions FunctionsConfig  `mapstructure:"functions"`
	Dev       DevConfig        `mapstructure:"dev"`
	History   HistoryConfig    `mapstructure:"history"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts. There is no write timeout: runtime long-polls and
	// synchronous invokes hold the connection open for as long as they need.
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// Enable CORS on function URLs and the dev API
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	ExposedHeaders   []string      `mapstructure:"exposed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// FunctionsConfig holds settings for locally run functions.
type FunctionsConfig struct {
	// Directory scanned for function directories
	Path string `mapstructure:"path"`

	// Command template used when a function has no explicit command.
	// {name} and {dir} are substituted.
	Command string `mapstructure:"command"`

	// Environment variables passed to every function
	Env map[string]string `mapstructure:"env"`

	// Reported AWS_LAMBDA_FUNCTION_MEMORY_SIZE
	MemoryMB int `mapstructure:"memory"`

	// Reported AWS_LAMBDA_FUNCTION_VERSION
	Version string `mapstructure:"version"`

	// Reported AWS_REGION and used in invoked function ARNs
	Region string `mapstructure:"region"`

	// Account id used in invoked function ARNs
	AccountID string `mapstructure:"account_id"`

	// How long a synchronous invoke waits for a result
	Timeout time.Duration `mapstructure:"timeout"`

	// Fail queued invocations when their function exits instead of leaving
	// the callers to time out
	FailOrphaned bool `mapstructure:"fail_orphaned"`

	// Explicit function definitions, keyed by function name
	Definitions map[string]FunctionDefinition `mapstructure:"definitions"`
}

// FunctionDefinition overrides discovery for a single function.
type FunctionDefinition struct {
	Command string            `mapstructure:"command"`
	Dir     string            `mapstructure:"dir"`
	Env     map[string]string `mapstructure:"env"`
	Memory  int               `mapstructure:"memory"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Watch   []string          `mapstructure:"watch"`
}

// DevConfig holds hot reload settings.
type DevConfig struct {
	// Restart functions when their sources change
	Watch bool `mapstructure:"watch"`

	// Quiet period before a change triggers a restart
	Debounce time.Duration `mapstructure:"debounce"`

	// Extra paths whose changes restart every running function
	WatchPaths []string `mapstructure:"watch_paths"`

	// Glob patterns of files that count as sources
	WatchPatterns []string `mapstructure:"watch_patterns"`
}

// HistoryConfig holds invocation history settings.
type HistoryConfig struct {
	// Record invocations
	Enabled bool `mapstructure:"enabled"`

	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode
	WALMode bool `mapstructure:"wal_mode"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// How long records are kept; zero keeps them forever
	Retention time.Duration `mapstructure:"retention"`

	// How often expired records are purged
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// Request and response bodies are truncated to this many bytes
	MaxBodySize int `mapstructure:"max_body_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ScheduleConfig triggers a function on a cron schedule.
type ScheduleConfig struct {
	Name     string `mapstructure:"name"`
	Function string `mapstructure:"function"`
	// Cron expression; descriptors such as @every 5m are accepted
	Cron string `mapstructure:"cron"`
	// Payload replaces the default scheduled event when set
	Payload  string `mapstructure:"payload"`
	Disabled bool   `mapstructure:"disabled"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RuntimeAddress returns the host:port function processes use to reach the
// Runtime API. Wildcard binds are reached through loopback.
func (s *ServerConfig) RuntimeAddress() string {
	host := s.Host
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}
