package sessionstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/google/uuid"
)

// Memory is an in-memory Store. Useful for development and single-process
// deployments; all data is lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.Session
	outputs  map[uuid.UUID][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[uuid.UUID]domain.Session),
		outputs:  make(map[uuid.UUID][]byte),
	}
}

var _ Store = (*Memory)(nil)

func now() int64 { return time.Now().Unix() }

// Create implements Store.
func (m *Memory) Create(_ context.Context, execCtx domain.ExecutionContext) (uuid.UUID, error) {
	id := uuid.New()
	ts := now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = domain.Session{
		ID:        id,
		Context:   execCtx,
		Status:    domain.StatusPending,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	m.outputs[id] = nil
	return id, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// UpdateStatus implements Store.
func (m *Memory) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.Status = status
	session.UpdatedAt = now()
	m.sessions[id] = session
	return nil
}

// SetAgentSessionID implements Store.
func (m *Memory) SetAgentSessionID(_ context.Context, id uuid.UUID, agentSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.AgentSessionID = &agentSessionID
	session.UpdatedAt = now()
	m.sessions[id] = session
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, filter domain.Filter) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		if filter.WorkingDir != nil && session.Context.WorkingDir != *filter.WorkingDir {
			continue
		}
		result = append(result, session)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// AppendOutput implements Store.
func (m *Memory) AppendOutput(_ context.Context, id uuid.UUID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	m.outputs[id] = append(m.outputs[id], data...)
	return nil
}

// GetOutput implements Store.
func (m *Memory) GetOutput(_ context.Context, id uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[id]; !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(m.outputs[id]))
	copy(out, m.outputs[id])
	return out, nil
}

// Close implements Store. It is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }
