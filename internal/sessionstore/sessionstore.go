// Package sessionstore defines the SessionStorage contract and its
// in-memory and SQLite-backed implementations.
package sessionstore

import (
	"context"
	"errors"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id has no matching record.
var ErrNotFound = errors.New("session not found")

// Store is the behavioral contract every session storage backend satisfies.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a session in state Pending with a fresh UUID and
	// current timestamps.
	Create(ctx context.Context, execCtx domain.ExecutionContext) (uuid.UUID, error)

	// Get fetches a session by id. It returns (nil, nil) if absent, never
	// ErrNotFound — callers that require presence should check for nil.
	Get(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	// UpdateStatus updates status and updated_at. Returns ErrNotFound if id
	// is absent.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error

	// SetAgentSessionID stores the agent's own session id. Returns
	// ErrNotFound if id is absent.
	SetAgentSessionID(ctx context.Context, id uuid.UUID, agentSessionID string) error

	// List returns sessions ordered by created_at descending, narrowed by
	// filter.
	List(ctx context.Context, filter domain.Filter) ([]domain.Session, error)

	// AppendOutput appends opaque bytes to a session's output blob. Returns
	// ErrNotFound if id is absent.
	AppendOutput(ctx context.Context, id uuid.UUID, data []byte) error

	// GetOutput returns the full accumulated output blob. Returns
	// ErrNotFound if id is absent.
	GetOutput(ctx context.Context, id uuid.UUID) ([]byte, error)

	// Close releases any resources held by the backend.
	Close() error
}
