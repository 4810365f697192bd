// Package manager orchestrates an agent session's full lifecycle: create,
// spawn, forward output, interrupt, and follow-up, tying together
// sessionstore, executor, controlpeer, and msgstore.
package manager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/relaybroker/internal/controlpeer"
	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/ashureev/relaybroker/internal/executor"
	"github.com/ashureev/relaybroker/internal/logmsg"
	"github.com/ashureev/relaybroker/internal/msgstore"
	"github.com/ashureev/relaybroker/internal/sessionstore"
	"github.com/google/uuid"
)

// Manager errors.
var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyActive = errors.New("session already active")
	ErrNoAgentSessionID = errors.New("session has no agent session id to follow up from")
)

// activeSession is the bookkeeping for one currently-running agent process.
type activeSession struct {
	store     *msgstore.MsgStore
	peer      *controlpeer.Peer
	process   *executor.Process
}

// Manager orchestrates sessions backed by a Store and an Executor.
//
// The zero value is not usable; construct with New.
type Manager struct {
	storage       sessionstore.Store
	exec          *executor.Executor
	handler       controlpeer.ApprovalHandler
	log           *slog.Logger
	historyBudget int

	mu     sync.RWMutex
	active map[uuid.UUID]*activeSession
}

// New constructs a Manager using the default per-session history budget.
// handler may be nil, in which case every can_use_tool request the agent
// sends is auto-approved.
func New(storage sessionstore.Store, exec *executor.Executor, handler controlpeer.ApprovalHandler) *Manager {
	return NewWithHistoryBudget(storage, exec, handler, msgstore.DefaultHistoryBudget)
}

// NewWithHistoryBudget constructs a Manager whose sessions cap their
// in-memory output history at historyBudget bytes.
func NewWithHistoryBudget(storage sessionstore.Store, exec *executor.Executor, handler controlpeer.ApprovalHandler, historyBudget int) *Manager {
	return &Manager{
		storage:       storage,
		exec:          exec,
		handler:       handler,
		log:           slog.Default(),
		historyBudget: historyBudget,
		active:        make(map[uuid.UUID]*activeSession),
	}
}

// logSinkFunc adapts a MsgStore into a controlpeer.LogSink, recording every
// opaque/result line the peer doesn't itself consume as stdout history and
// persisting it to durable storage alongside.
type logSinkFunc struct {
	store   *msgstore.MsgStore
	storage sessionstore.Store
	id      uuid.UUID
}

func (s logSinkFunc) LogRaw(line string) {
	s.store.Push(logmsg.Stdout(line))
	if err := s.storage.AppendOutput(context.Background(), s.id, []byte(line+"\n")); err != nil {
		slog.Default().Warn("failed to persist output", "session_id", s.id, "error", err)
	}
}

// StartSession creates a persisted session, transitions it to Running,
// spawns the executor, and starts background forwarding of the child's
// output into the session's MsgStore. It returns the new session id
// immediately; forwarding continues on background goroutines after return.
func (m *Manager) StartSession(ctx context.Context, execCtx domain.ExecutionContext, prompt string) (uuid.UUID, error) {
	id, err := m.storage.Create(ctx, execCtx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}

	if err := m.storage.UpdateStatus(ctx, id, domain.StatusRunning); err != nil {
		return uuid.Nil, fmt.Errorf("mark session running: %w", err)
	}

	process, err := m.exec.Spawn(ctx, execCtx)
	if err != nil {
		_ = m.storage.UpdateStatus(ctx, id, domain.StatusFailed)
		return uuid.Nil, fmt.Errorf("spawn agent: %w", err)
	}

	m.runSession(id, process, prompt)
	return id, nil
}

// StartFollowUp loads the session at originalID, requires it to have an
// agent-assigned session id, and spawns a new session that resumes that
// agent conversation.
func (m *Manager) StartFollowUp(ctx context.Context, originalID uuid.UUID, prompt string) (uuid.UUID, error) {
	original, err := m.storage.Get(ctx, originalID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load original session: %w", err)
	}
	if original == nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotFound, originalID)
	}
	if !original.CanFollowUp() {
		return uuid.Nil, fmt.Errorf("%w: %w: %s", ErrNotFound, ErrNoAgentSessionID, originalID)
	}

	id, err := m.storage.Create(ctx, original.Context)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create follow-up session: %w", err)
	}
	if err := m.storage.UpdateStatus(ctx, id, domain.StatusRunning); err != nil {
		return uuid.Nil, fmt.Errorf("mark follow-up session running: %w", err)
	}

	process, err := m.exec.SpawnFollowUp(ctx, original.Context, *original.AgentSessionID)
	if err != nil {
		_ = m.storage.UpdateStatus(ctx, id, domain.StatusFailed)
		return uuid.Nil, fmt.Errorf("spawn follow-up agent: %w", err)
	}

	m.runSession(id, process, prompt)
	return id, nil
}

// runSession registers the active session and starts its forwarding
// goroutine. The background goroutine owns the process's lifetime: it
// writes the initial prompt, drains the control peer, and on exit pushes
// Finished and records the terminal status.
func (m *Manager) runSession(id uuid.UUID, process *executor.Process, prompt string) {
	store := msgstore.NewWithBudget(m.historyBudget)
	sink := logSinkFunc{store: store, storage: m.storage, id: id}
	peer := controlpeer.New(process.Stdin, process.Stdout, m.handler, sink)

	session := &activeSession{store: store, peer: peer, process: process}

	m.mu.Lock()
	m.active[id] = session
	m.mu.Unlock()

	go m.forward(id, session, prompt)
}

func (m *Manager) forward(id uuid.UUID, session *activeSession, prompt string) {
	ctx := context.Background()

	if prompt != "" {
		if err := session.peer.SendUserMessage(prompt); err != nil {
			m.log.Warn("failed to send initial prompt", "session_id", id, "error", err)
		}
	}

	go m.drainStderr(id, session)

	peerErr := session.peer.Run(ctx)

	waitErr := session.process.Cmd.Wait()
	status := domain.StatusCompleted
	if waitErr != nil || (peerErr != nil && peerErr != context.Canceled) {
		status = domain.StatusFailed
	}

	if agentSessionID, ok := session.peer.AgentSessionID(); ok {
		if err := m.storage.SetAgentSessionID(ctx, id, agentSessionID); err != nil {
			m.log.Warn("failed to record agent session id", "session_id", id, "error", err)
		}
	}

	// Status must land before Finished is pushed: a client watching the
	// stream learns of completion from Finished and immediately asks the
	// manager for the terminal status, racing this write otherwise.
	if err := m.storage.UpdateStatus(ctx, id, status); err != nil {
		m.log.Warn("failed to record terminal status", "session_id", id, "error", err)
	}
	session.store.Push(logmsg.Finished())

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *Manager) drainStderr(id uuid.UUID, session *activeSession) {
	scanner := bufio.NewScanner(session.process.Stderr)
	for scanner.Scan() {
		line := scanner.Text()
		session.store.Push(logmsg.Stderr(line))
		if err := m.storage.AppendOutput(context.Background(), id, []byte(line+"\n")); err != nil {
			m.log.Warn("failed to persist stderr output", "session_id", id, "error", err)
		}
	}
}

// GetMsgStore returns the shared handle to an active session's store, or
// (nil, false) if the session is not currently active.
func (m *Manager) GetMsgStore(id uuid.UUID) (*msgstore.MsgStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.active[id]
	if !ok {
		return nil, false
	}
	return session.store, true
}

// GetStatus returns a session's current persisted status, or (_, false) if
// id has no record.
func (m *Manager) GetStatus(ctx context.Context, id uuid.UUID) (domain.Status, bool) {
	session, err := m.storage.Get(ctx, id)
	if err != nil || session == nil {
		return "", false
	}
	return session.Status, true
}

// InterruptSession signals the active session's interrupt channel.
// Idempotent; silently succeeds if the session is not active.
func (m *Manager) InterruptSession(id uuid.UUID) {
	m.mu.RLock()
	session, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	session.peer.Interrupt()
}

// WriteInput writes raw bytes directly to an active session's child stdin,
// bypassing the control-protocol peer. Used for interactive-shell sessions
// whose input is plain keystrokes rather than control-protocol frames.
// Returns ErrNotFound if the session is not active.
func (m *Manager) WriteInput(id uuid.UUID, data []byte) error {
	m.mu.RLock()
	session, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := session.process.Stdin.Write(data); err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	return nil
}
