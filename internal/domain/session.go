// Package domain holds the broker's persisted session record and the
// execution context each agent process is spawned with.
package domain

import "github.com/google/uuid"

// Status is the lifecycle state of a Session.
type Status string

// Session lifecycle states. Once a session reaches Completed, Failed, or
// Cancelled it never transitions again.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is one of the absorbing terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ExecutionContext is the opaque environment an agent process is spawned
// into. The broker interprets WorkingDir (as the child's CWD) but treats
// Metadata purely as an app-specific carry-along.
type ExecutionContext struct {
	WorkingDir string
	Metadata   map[string]any
}

// NewExecutionContext builds a context rooted at workingDir with empty
// metadata.
func NewExecutionContext(workingDir string) ExecutionContext {
	return ExecutionContext{WorkingDir: workingDir, Metadata: make(map[string]any)}
}

// WithMetadata returns a copy of ctx with key set to value.
func (c ExecutionContext) WithMetadata(key string, value any) ExecutionContext {
	out := c
	out.Metadata = make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}

// Metadatum fetches a metadata value by key.
func (c ExecutionContext) Metadatum(key string) (any, bool) {
	v, ok := c.Metadata[key]
	return v, ok
}

// Session is the broker's persisted record of one agent conversation.
type Session struct {
	ID             uuid.UUID
	Context        ExecutionContext
	Status         Status
	AgentSessionID *string
	CreatedAt      int64 // unix seconds
	UpdatedAt      int64 // unix seconds
}

// CanFollowUp reports whether this session has an agent-assigned id a
// follow-up session could target.
func (s Session) CanFollowUp() bool {
	return s.AgentSessionID != nil && *s.AgentSessionID != ""
}

// Filter narrows a List query over sessions.
type Filter struct {
	Status     *Status
	WorkingDir *string
	Limit      int // 0 means unlimited
}
