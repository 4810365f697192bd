package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/ashureev/relaybroker/internal/shared"
	"github.com/google/uuid"
)

const reaperInterval = 5 * time.Minute

// StartReaper runs a background sweep that finds sessions recorded as
// Running in storage but with no corresponding in-process entry in the
// Manager's active map — the state a session is left in after a broker
// restart interrupts it mid-flight — and marks them Failed so a client
// reconnecting to a dead session id gets a terminal status instead of
// waiting forever. It returns a stop function that halts the sweep.
func (m *Manager) StartReaper(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(reaperInterval)

	go func() {
		defer ticker.Stop()
		slog.Info("session reaper started", "interval", reaperInterval)
		for {
			select {
			case <-ticker.C:
				m.reapOrphanedSessions(ctx)
			case <-ctx.Done():
				slog.Info("session reaper stopping", "reason", ctx.Err())
				return
			}
		}
	}()

	return cancel
}

func (m *Manager) reapOrphanedSessions(ctx context.Context) {
	running := domain.StatusRunning
	sessions, err := m.storage.List(ctx, domain.Filter{Status: &running})
	if err != nil {
		slog.Error("session reaper failed to list running sessions", "error", err)
		return
	}

	for _, session := range sessions {
		if _, active := m.GetMsgStore(session.ID); active {
			continue
		}

		slog.Warn("session reaper found orphaned running session", "session_id", session.ID)
		if err := m.updateStatusWithRetry(ctx, session.ID, domain.StatusFailed); err != nil {
			slog.Error("session reaper failed to mark session failed", "session_id", session.ID, "error", err)
		}
	}
}

// updateStatusWithRetry retries a status update with exponential backoff
// when the backing store reports SQLITE_BUSY or "database is locked",
// mirroring the retry discipline the prototype's own cleanup sweep used.
func (m *Manager) updateStatusWithRetry(ctx context.Context, id uuid.UUID, status domain.Status) error {
	const maxAttempts = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = m.storage.UpdateStatus(ctx, id, status)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
