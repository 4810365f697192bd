package sessionstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/google/uuid"
)

var errDatabaseIsLocked = errors.New("database is locked")

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestSQLiteCreateGet(t *testing.T) {
	t.Parallel()

	store := newTestSQLite(t)
	ctx := context.Background()

	id, err := store.Create(ctx, domain.NewExecutionContext("/tmp/work"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	session, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if session == nil {
		t.Fatalf("Get() = nil, want a session")
	}
	if session.Status != domain.StatusPending {
		t.Fatalf("Status = %v, want Pending", session.Status)
	}
	if session.Context.WorkingDir != "/tmp/work" {
		t.Fatalf("WorkingDir = %q, want /tmp/work", session.Context.WorkingDir)
	}
}

func TestSQLiteUpdateStatusAndAgentSessionID(t *testing.T) {
	t.Parallel()

	store := newTestSQLite(t)
	ctx := context.Background()
	id, _ := store.Create(ctx, domain.NewExecutionContext("/tmp"))

	if err := store.UpdateStatus(ctx, id, domain.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := store.SetAgentSessionID(ctx, id, "agent-123"); err != nil {
		t.Fatalf("SetAgentSessionID() error = %v", err)
	}

	updated, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if updated.Status != domain.StatusRunning {
		t.Fatalf("Status = %v, want Running", updated.Status)
	}
	if updated.AgentSessionID == nil || *updated.AgentSessionID != "agent-123" {
		t.Fatalf("AgentSessionID = %v, want agent-123", updated.AgentSessionID)
	}

	if err := store.UpdateStatus(ctx, uuid.New(), domain.StatusRunning); err != ErrNotFound {
		t.Fatalf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteAppendAndGetOutput(t *testing.T) {
	t.Parallel()

	store := newTestSQLite(t)
	ctx := context.Background()
	id, _ := store.Create(ctx, domain.NewExecutionContext("/tmp"))

	if err := store.AppendOutput(ctx, id, []byte("hello ")); err != nil {
		t.Fatalf("AppendOutput() error = %v", err)
	}
	if err := store.AppendOutput(ctx, id, []byte("world")); err != nil {
		t.Fatalf("AppendOutput() error = %v", err)
	}

	out, err := store.GetOutput(ctx, id)
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("GetOutput() = %q, want %q", out, "hello world")
	}

	if _, err := store.GetOutput(ctx, uuid.New()); err != ErrNotFound {
		t.Fatalf("GetOutput(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := newTestSQLite(t)
	ctx := context.Background()

	id1, _ := store.Create(ctx, domain.NewExecutionContext("/a"))
	id2, _ := store.Create(ctx, domain.NewExecutionContext("/b"))
	_ = store.UpdateStatus(ctx, id1, domain.StatusRunning)
	_ = store.UpdateStatus(ctx, id2, domain.StatusCompleted)

	running := domain.StatusRunning
	sessions, err := store.List(ctx, domain.Filter{Status: &running})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id1 {
		t.Fatalf("List(running) = %v, want only id1", sessions)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	id, _ := store.Create(ctx, domain.NewExecutionContext("/tmp"))
	_ = store.AppendOutput(ctx, id, []byte("persisted"))
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite(reopen) error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	session, err := reopened.Get(ctx, id)
	if err != nil || session == nil {
		t.Fatalf("Get() after reopen = %+v, err=%v", session, err)
	}
	out, err := reopened.GetOutput(ctx, id)
	if err != nil || string(out) != "persisted" {
		t.Fatalf("GetOutput() after reopen = %q, err=%v", out, err)
	}
}

func TestSQLiteWithRetryUsesConfiguredAttempts(t *testing.T) {
	t.Parallel()

	store := newTestSQLite(t)
	store.retryConfig = RetryConfig{MaxAttempts: 2, BaseDelay: 0}

	attempts := 0
	err := store.withRetry(context.Background(), func(context.Context) error {
		attempts++
		return errDatabaseIsLocked
	})
	if err == nil {
		t.Fatalf("withRetry() error = nil, want non-nil")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}
