package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/ashureev/relaybroker/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite implements Store using a WAL-mode SQLite database. The prototype
// this broker is modeled on left SQLite storage as an interface-only stub;
// this is the completed backend, so a reconnecting client can still recover
// history and status after a broker restart.
type SQLite struct {
	db          *sql.DB
	mu          sync.Mutex // serializes writes to reduce SQLITE_BUSY contention
	retryConfig RetryConfig
}

// PoolConfig tunes the underlying *sql.DB connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RetryConfig tunes the backoff used when a write hits SQLITE_BUSY/LOCKED.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPoolConfig mirrors the teacher's own SQLite pool tuning.
var DefaultPoolConfig = PoolConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute}

// DefaultRetryConfig mirrors the teacher's own database retry defaults.
var DefaultRetryConfig = RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}

// NewSQLite opens (creating if needed) a SQLite-backed Store at dbPath using
// DefaultPoolConfig and DefaultRetryConfig.
func NewSQLite(dbPath string) (*SQLite, error) {
	return NewSQLiteWithConfig(dbPath, DefaultPoolConfig, DefaultRetryConfig)
}

// NewSQLiteWithConfig opens a SQLite-backed Store at dbPath with explicit
// connection pool and retry configuration.
func NewSQLiteWithConfig(dbPath string, pool PoolConfig, retry RetryConfig) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLite{db: db, retryConfig: retry}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

var _ Store = (*SQLite)(nil)

func (s *SQLite) initSchema() error {
	const schema = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		working_dir TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		agent_session_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS session_outputs (
		session_id TEXT PRIMARY KEY REFERENCES sessions(id),
		data BLOB NOT NULL DEFAULT x''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Create implements Store.
func (s *SQLite) Create(ctx context.Context, execCtx domain.ExecutionContext) (uuid.UUID, error) {
	id := uuid.New()
	ts := time.Now().Unix()

	metadata, err := json.Marshal(execCtx.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, working_dir, metadata_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), execCtx.WorkingDir, string(metadata), string(domain.StatusPending), ts, ts,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert session: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO session_outputs (session_id, data) VALUES (?, x'')`, id.String(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert session output row: %w", err)
	}

	return id, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT working_dir, metadata_json, status, agent_session_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id.String())

	var (
		workingDir, metadataJSON, status string
		agentSessionID                   sql.NullString
		createdAt, updatedAt             int64
	)
	err := row.Scan(&workingDir, &metadataJSON, &status, &agentSessionID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	session := &domain.Session{
		ID:        id,
		Context:   domain.ExecutionContext{WorkingDir: workingDir, Metadata: metadata},
		Status:    domain.Status(status),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if agentSessionID.Valid {
		session.AgentSessionID = &agentSessionID.String
	}
	return session, nil
}

// UpdateStatus implements Store.
func (s *SQLite) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRowsAffected(result)
}

// SetAgentSessionID implements Store.
func (s *SQLite) SetAgentSessionID(ctx context.Context, id uuid.UUID, agentSessionID string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		result, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET agent_session_id = ?, updated_at = ? WHERE id = ?`,
			agentSessionID, time.Now().Unix(), id.String(),
		)
		if err != nil {
			return fmt.Errorf("set agent session id: %w", err)
		}
		return requireRowsAffected(result)
	})
}

// List implements Store.
func (s *SQLite) List(ctx context.Context, filter domain.Filter) ([]domain.Session, error) {
	query := `SELECT id, working_dir, metadata_json, status, agent_session_id, created_at, updated_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.WorkingDir != nil {
		query += ` AND working_dir = ?`
		args = append(args, *filter.WorkingDir)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close sessions rows", "error", closeErr)
		}
	}()

	var out []domain.Session
	for rows.Next() {
		var (
			idStr, workingDir, metadataJSON, status string
			agentSessionID                          sql.NullString
			createdAt, updatedAt                     int64
		)
		if err := rows.Scan(&idStr, &workingDir, &metadataJSON, &status, &agentSessionID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		var metadata map[string]any
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		session := domain.Session{
			ID:        id,
			Context:   domain.ExecutionContext{WorkingDir: workingDir, Metadata: metadata},
			Status:    domain.Status(status),
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		}
		if agentSessionID.Valid {
			session.AgentSessionID = &agentSessionID.String
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// AppendOutput implements Store.
func (s *SQLite) AppendOutput(ctx context.Context, id uuid.UUID, data []byte) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		result, err := s.db.ExecContext(ctx, `
			UPDATE session_outputs SET data = data || ? WHERE session_id = ?`,
			data, id.String(),
		)
		if err != nil {
			return fmt.Errorf("append output: %w", err)
		}
		return requireRowsAffected(result)
	})
}

// GetOutput implements Store.
func (s *SQLite) GetOutput(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM session_outputs WHERE session_id = ?`, id.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get output: %w", err)
	}
	return data, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// withRetry retries op with exponential backoff when SQLite reports a busy
// or locked database, mirroring the retry discipline the prototype's
// backend wraps its own write paths in.
func (s *SQLite) withRetry(ctx context.Context, op func(context.Context) error) error {
	maxAttempts := s.retryConfig.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryConfig.MaxAttempts
	}
	baseDelay := s.retryConfig.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryConfig.BaseDelay
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteBusyError(err) && !shared.IsSQLiteLockedError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<attempt)
		slog.Debug("sqlite write busy, retrying", "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}
