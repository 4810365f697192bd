package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != "8080" {
		t.Fatalf("HTTP.Port = %q, want 8080", cfg.HTTP.Port)
	}
	if cfg.History.BudgetBytes != 100*1024*1024 {
		t.Fatalf("History.BudgetBytes = %d, want 100MiB", cfg.History.BudgetBytes)
	}
	if cfg.Executor.CommandTemplate == "" {
		t.Fatalf("Executor.CommandTemplate = empty, want a default")
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HISTORY_BUDGET", "1MiB")
	t.Setenv("SQLITE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != "9000" {
		t.Fatalf("HTTP.Port = %q, want 9000", cfg.HTTP.Port)
	}
	if cfg.History.BudgetBytes != 1024*1024 {
		t.Fatalf("History.BudgetBytes = %d, want 1MiB", cfg.History.BudgetBytes)
	}
	if cfg.SQLite.Enabled {
		t.Fatalf("SQLite.Enabled = true, want false")
	}
}

func TestValidateRejectsEmptyCommand(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENT_COMMAND", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for empty AGENT_COMMAND")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{FrontendURL: ""}
	if !cfg.IsDevelopment() {
		t.Fatalf("IsDevelopment() = false, want true for empty FrontendURL")
	}
	cfg.FrontendURL = "https://example.com"
	if cfg.IsDevelopment() {
		t.Fatalf("IsDevelopment() = true, want false for production URL")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "FRONTEND_URL", "HISTORY_BUDGET", "AGENT_COMMAND",
		"EXECUTOR_SHELL_TIMEOUT", "SQLITE_MAX_RETRIES", "SQLITE_RETRY_BASE_DELAY",
		"SQLITE_ENABLED", "SQLITE_PATH", "SQLITE_MAX_OPEN_CONNS", "SQLITE_MAX_IDLE_CONNS",
		"SQLITE_CONN_MAX_LIFETIME", "ALLOWED_ORIGIN",
	} {
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Unsetenv(%s) error = %v", key, err)
		}
	}
}
