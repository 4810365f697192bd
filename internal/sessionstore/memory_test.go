package sessionstore

import (
	"context"
	"testing"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/google/uuid"
)

func TestMemoryCreateGet(t *testing.T) {
	t.Parallel()

	store := NewMemory()
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

func TestMemoryDistinctIDs(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		id, err := store.Create(ctx, domain.NewExecutionContext("/tmp"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[id.String()] {
			t.Fatalf("duplicate session id: %s", id)
		}
		seen[id.String()] = true
	}
}

func TestMemoryUpdateStatus(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	id, _ := store.Create(ctx, domain.NewExecutionContext("/tmp"))

	if err := store.UpdateStatus(ctx, id, domain.StatusRunning); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	updated, err := store.Get(ctx, id)
	if err != nil || updated.Status != domain.StatusRunning {
		t.Fatalf("Status after update = %v, err=%v, want Running", updated.Status, err)
	}

	if err := store.UpdateStatus(ctx, uuid.New(), domain.StatusRunning); err != ErrNotFound {
		t.Fatalf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryAppendAndGetOutput(t *testing.T) {
	t.Parallel()

	store := NewMemory()
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
}

func TestMemoryListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := NewMemory()
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

func TestMemoryGetMissing(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	session, err := store.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if session != nil {
		t.Fatalf("Get(missing) = %+v, want nil", session)
	}
}
