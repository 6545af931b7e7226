package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.Functions.Command != DefaultCommand {
		t.Errorf("expected command %q, got %q", DefaultCommand, cfg.Functions.Command)
	}

	if cfg.Functions.MemoryMB != DefaultFunctionMemory {
		t.Errorf("expected memory %d, got %d", DefaultFunctionMemory, cfg.Functions.MemoryMB)
	}

	if cfg.Functions.FailOrphaned {
		t.Error("expected orphaned invocations to be left waiting by default")
	}

	if !cfg.History.Enabled {
		t.Error("expected history to be enabled by default")
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid port")
	}

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	found := false
	for _, e := range errs {
		if e.Field == "server.port" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected error for server.port field")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "invalid"

	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for invalid log level")
	}
}

func TestValidate_FunctionMemory(t *testing.T) {
	tests := []struct {
		name    string
		memory  int
		wantErr bool
	}{
		{"below minimum", 64, true},
		{"minimum", MinFunctionMemory, false},
		{"default", DefaultFunctionMemory, false},
		{"maximum", MaxFunctionMemory, false},
		{"above maximum", MaxFunctionMemory + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Functions.MemoryMB = tt.memory
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_FunctionDefinitions(t *testing.T) {
	cfg := Default()
	cfg.Functions.Definitions["bad/name"] = FunctionDefinition{Memory: 10}

	err := Validate(cfg)
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(errs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidate_Schedules(t *testing.T) {
	cfg := Default()
	cfg.Schedules = []ScheduleConfig{
		{Name: "nightly", Function: "report", Cron: "0 3 * * *"},
		{Name: "nightly", Function: "report", Cron: "@daily"},
		{Name: "", Function: "", Cron: ""},
	}

	err := Validate(cfg)
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(errs) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidate_HistoryDisabledSkipsChecks(t *testing.T) {
	cfg := Default()
	cfg.History.Enabled = false
	cfg.History.Path = ""
	cfg.History.Retention = -time.Hour

	if err := Validate(cfg); err != nil {
		t.Errorf("expected disabled history to be ignored, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "lambdev.yaml")

	content := `
server:
  port: 9100
  host: "0.0.0.0"
functions:
  path: "functions"
  timeout: 5s
  fail_orphaned: true
  env:
    LOG_LEVEL: debug
  definitions:
    orders:
      command: "go run ./services/orders"
      memory: 512
      env:
        TABLE_NAME: orders
schedules:
  - name: cleanup
    function: orders
    cron: "@every 1m"
logging:
  level: "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}

	if cfg.Functions.Path != "functions" {
		t.Errorf("expected functions path functions, got %s", cfg.Functions.Path)
	}

	if cfg.Functions.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Functions.Timeout)
	}

	if !cfg.Functions.FailOrphaned {
		t.Error("expected fail_orphaned to be set")
	}

	if got := cfg.Functions.Env["LOG_LEVEL"]; got != "debug" {
		t.Errorf("expected LOG_LEVEL=debug, got %q", got)
	}

	orders, ok := cfg.Functions.Definitions["orders"]
	if !ok {
		t.Fatal("expected orders definition")
	}
	if orders.Memory != 512 {
		t.Errorf("expected orders memory 512, got %d", orders.Memory)
	}
	if got := orders.Env["TABLE_NAME"]; got != "orders" {
		t.Errorf("expected TABLE_NAME=orders, got %q", got)
	}

	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Cron != "@every 1m" {
		t.Errorf("unexpected schedules: %+v", cfg.Schedules)
	}

	// Unset values keep their defaults.
	if cfg.Functions.Command != DefaultCommand {
		t.Errorf("expected default command, got %q", cfg.Functions.Command)
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("LAMBDEV_SERVER_PORT", "7777")
	t.Setenv("LAMBDEV_FUNCTIONS_REGION", "eu-central-1")

	cfg, err := LoadWithDefaults()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Server.Port)
	}

	if cfg.Functions.Region != "eu-central-1" {
		t.Errorf("expected region eu-central-1 from env, got %s", cfg.Functions.Region)
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("LAMBDEV_TEST_HISTORY", "/tmp/lambdev-history.db")

	configPath := filepath.Join(t.TempDir(), "lambdev.yaml")
	content := "history:\n  path: \"${LAMBDEV_TEST_HISTORY}\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.History.Path != "/tmp/lambdev-history.db" {
		t.Errorf("expected expanded history path, got %s", cfg.History.Path)
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &ServerConfig{Host: "localhost", Port: 9001}
	if addr := cfg.Address(); addr != "localhost:9001" {
		t.Errorf("expected localhost:9001, got %s", addr)
	}
}

func TestRuntimeAddress(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", "127.0.0.1:9001"},
		{"0.0.0.0", "127.0.0.1:9001"},
		{"localhost", "localhost:9001"},
		{"192.168.1.5", "192.168.1.5:9001"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: 9001}
		if got := cfg.RuntimeAddress(); got != tt.want {
			t.Errorf("RuntimeAddress(%q) = %s, want %s", tt.host, got, tt.want)
		}
	}
}

func TestConfigFilePath_Custom(t *testing.T) {
	_, err := ConfigFilePath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for missing custom config")
	}
}
