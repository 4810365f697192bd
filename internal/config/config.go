// Package config provides application configuration.
//
// Configuration is loaded from environment variables with sensible defaults.
// All timeouts and operational parameters are configurable.
//
// Configuration categories:
//   - History: per-session message store byte budget
//   - Executor: agent command template and spawn timeouts
//   - Retry: SQLite retry attempts and delays
//   - SQLite: database path and connection pool tuning
//   - HTTP: listen port and CORS origin
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// HistoryConfig holds message-store history budget configuration.
type HistoryConfig struct {
	BudgetBytes int64 // per-session history byte ceiling (default: 100MiB)
}

// ExecutorConfig holds agent spawn configuration.
type ExecutorConfig struct {
	CommandTemplate string        // shell-quoted base command used to spawn the agent
	ShellTimeout    time.Duration // timeout for login-shell PATH refresh (default: 5s)
}

// RetryConfig holds retry-related configuration.
type RetryConfig struct {
	SQLiteMaxAttempts int           // max SQLite write retry attempts (default: 3)
	SQLiteBaseDelay   time.Duration // base delay for SQLite retries (default: 100ms)
}

// SQLiteConfig holds SQLite connection and pool configuration.
type SQLiteConfig struct {
	Enabled        bool // false selects the in-memory store instead
	Path           string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxLifetime time.Duration
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port          string
	AllowedOrigin string // "*" allows any origin
}

// Config holds all application configuration.
type Config struct {
	FrontendURL string
	History     HistoryConfig
	Executor    ExecutorConfig
	Retry       RetryConfig
	SQLite      SQLiteConfig
	HTTP        HTTPConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	budget, err := units.RAMInBytes(getEnv("HISTORY_BUDGET", "100MiB"))
	if err != nil {
		return nil, fmt.Errorf("parse HISTORY_BUDGET: %w", err)
	}

	cfg := &Config{
		FrontendURL: getEnv("FRONTEND_URL", ""),
		History: HistoryConfig{
			BudgetBytes: budget,
		},
		Executor: ExecutorConfig{
			CommandTemplate: getEnv("AGENT_COMMAND", "claude --print --output-format stream-json --input-format stream-json"),
			ShellTimeout:    getEnvDuration("EXECUTOR_SHELL_TIMEOUT", 5*time.Second),
		},
		Retry: RetryConfig{
			SQLiteMaxAttempts: getEnvInt("SQLITE_MAX_RETRIES", 3),
			SQLiteBaseDelay:   getEnvDuration("SQLITE_RETRY_BASE_DELAY", 100*time.Millisecond),
		},
		SQLite: SQLiteConfig{
			Enabled:         getEnvBool("SQLITE_ENABLED", true),
			Path:            getEnv("SQLITE_PATH", "./data/relaybroker.db"),
			MaxOpenConns:    getEnvInt("SQLITE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("SQLITE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("SQLITE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		HTTP: HTTPConfig{
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Executor.CommandTemplate == "" {
		return fmt.Errorf("AGENT_COMMAND cannot be empty")
	}
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		return fmt.Errorf("SQLITE_PATH cannot be empty when SQLITE_ENABLED is set")
	}
	if c.History.BudgetBytes <= 0 {
		return fmt.Errorf("HISTORY_BUDGET must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
