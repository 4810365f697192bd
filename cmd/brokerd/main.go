// relaybroker - reconnectable session broker for long-running agent
// subprocesses.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/relaybroker/internal/config"
	"github.com/ashureev/relaybroker/internal/controlpeer"
	"github.com/ashureev/relaybroker/internal/executor"
	"github.com/ashureev/relaybroker/internal/httpapi"
	"github.com/ashureev/relaybroker/internal/manager"
	"github.com/ashureev/relaybroker/internal/middleware"
	"github.com/ashureev/relaybroker/internal/sessionstore"
	"github.com/ashureev/relaybroker/internal/transport"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting relaybroker",
		"port", cfg.HTTP.Port,
		"dev", cfg.IsDevelopment(),
		"history_budget", humanize.IBytes(uint64(cfg.History.BudgetBytes)),
	)

	store, err := newStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize session storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close session storage", "error", closeErr)
		}
	}()
	slog.Info("Session storage ready", "sqlite_enabled", cfg.SQLite.Enabled)

	exec := executor.NewWithShellTimeout(cfg.Executor.CommandTemplate, cfg.Executor.ShellTimeout)
	mgr := manager.NewWithHistoryBudget(store, exec, controlpeer.AutoApproveHandler{}, int(cfg.History.BudgetBytes))

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	mgr.StartReaper(reaperCtx)
	defer stopReaper()

	wsHandler := transport.NewHandler(mgr, cfg.HTTP.AllowedOrigin, cfg.IsDevelopment())
	apiHandler := httpapi.NewHandler(store)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{cfg.HTTP.AllowedOrigin}))
	r.Use(otelhttp.NewMiddleware("relaybroker"))

	apiHandler.RegisterRoutes(r)
	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout, long-lived WebSocket sessions
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func newStore(cfg *config.Config) (sessionstore.Store, error) {
	if !cfg.SQLite.Enabled {
		return sessionstore.NewMemory(), nil
	}
	pool := sessionstore.PoolConfig{
		MaxOpenConns:    cfg.SQLite.MaxOpenConns,
		MaxIdleConns:    cfg.SQLite.MaxIdleConns,
		ConnMaxLifetime: cfg.SQLite.ConnMaxLifetime,
	}
	retry := sessionstore.RetryConfig{
		MaxAttempts: cfg.Retry.SQLiteMaxAttempts,
		BaseDelay:   cfg.Retry.SQLiteBaseDelay,
	}
	return sessionstore.NewSQLiteWithConfig(cfg.SQLite.Path, pool, retry)
}
