package config

import (
	"fmt"
	"strings"
)

// Lambda's configurable memory range.
const (
	MinFunctionMemory = 128
	MaxFunctionMemory = 10240
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateFunctions(&cfg.Functions)...)
	errs = append(errs, validateDev(&cfg.Dev)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	errs = append(errs, validateSchedules(cfg.Schedules)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be non-negative",
		})
	}

	if cfg.CORS.Enabled && cfg.CORS.AllowCredentials {
		for _, origin := range cfg.CORS.AllowedOrigins {
			if origin == "*" {
				errs = append(errs, ValidationError{
					Field:   "server.cors",
					Message: "security: allow_credentials=true with allowed_origins=[\"*\"] is insecure",
				})
				break
			}
		}
	}

	return errs
}

func validateFunctions(cfg *FunctionsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "functions.path",
			Message: "is required",
		})
	}

	if strings.TrimSpace(cfg.Command) == "" {
		errs = append(errs, ValidationError{
			Field:   "functions.command",
			Message: "is required",
		})
	}

	errs = append(errs, validateMemory("functions.memory", cfg.MemoryMB)...)

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "functions.timeout",
			Message: "must be positive",
		})
	}

	if cfg.Region == "" {
		errs = append(errs, ValidationError{
			Field:   "functions.region",
			Message: "is required",
		})
	}

	for name, def := range cfg.Definitions {
		field := "functions.definitions." + name
		if strings.ContainsAny(name, "/ ") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "function names cannot contain slashes or spaces",
			})
		}
		if def.Memory != 0 {
			errs = append(errs, validateMemory(field+".memory", def.Memory)...)
		}
		if def.Timeout < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".timeout",
				Message: "must be non-negative",
			})
		}
	}

	return errs
}

func validateMemory(field string, mb int) ValidationErrors {
	if mb < MinFunctionMemory || mb > MaxFunctionMemory {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", MinFunctionMemory, MaxFunctionMemory),
		}}
	}
	return nil
}

func validateDev(cfg *DevConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Debounce < 0 {
		errs = append(errs, ValidationError{
			Field:   "dev.debounce",
			Message: "must be non-negative",
		})
	}

	if cfg.Watch && len(cfg.WatchPatterns) == 0 {
		errs = append(errs, ValidationError{
			Field:   "dev.watch_patterns",
			Message: "at least one pattern is required when watching",
		})
	}

	return errs
}

func validateHistory(cfg *HistoryConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return nil
	}

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "history.path",
			Message: "is required when history is enabled",
		})
	}

	if cfg.Retention < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.retention",
			Message: "must be non-negative",
		})
	}

	if cfg.Retention > 0 && cfg.CleanupInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "history.cleanup_interval",
			Message: "must be positive when retention is set",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.max_body_size",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, console",
		})
	}

	return errs
}

func validateMetrics(cfg *MetricsConfig) ValidationErrors {
	if cfg.Enabled && !strings.HasPrefix(cfg.Path, "/") {
		return ValidationErrors{{
			Field:   "metrics.path",
			Message: "must start with /",
		}}
	}
	return nil
}

func validateSchedules(schedules []ScheduleConfig) ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]bool, len(schedules))
	for i, s := range schedules {
		field := fmt.Sprintf("schedules[%d]", i)

		if s.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "is required"})
		} else if seen[s.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "duplicate schedule name " + s.Name})
		}
		seen[s.Name] = true

		if s.Function == "" {
			errs = append(errs, ValidationError{Field: field + ".function", Message: "is required"})
		}
		if strings.TrimSpace(s.Cron) == "" {
			errs = append(errs, ValidationError{Field: field + ".cron", Message: "is required"})
		}
	}

	return errs
}
