// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/flow"
)

// ErrNotFound is returned when no run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    target      TEXT NOT NULL,
    status      TEXT NOT NULL,
    last_error  TEXT NOT NULL DEFAULT '',
    steps       INTEGER NOT NULL,
    state       JSONB NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_history (
    run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
    seq    INTEGER NOT NULL,
    url    TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);`

const upsertRunSQL = `
INSERT INTO runs (id, target, status, last_error, steps, state, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    last_error = EXCLUDED.last_error,
    steps = EXCLUDED.steps,
    state = EXCLUDED.state,
    finished_at = EXCLUDED.finished_at;`

const deleteHistorySQL = `DELETE FROM run_history WHERE run_id = $1;`

const selectRunSQL = `
SELECT target, status, last_error, steps, state, started_at, finished_at
FROM runs
WHERE id = $1;`

// Record is one persisted run.
type Record struct {
	ID         string
	Target     string
	Status     flow.Status
	LastError  string
	Steps      int
	State      flow.RunState
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store persists run outcomes in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes the run and its navigation history in one transaction.
// Saving the same run ID again replaces the earlier record.
func (s *Store) SaveRun(ctx context.Context, runID string, startedAt time.Time, res *flow.Result) error {
	if res == nil {
		return fmt.Errorf("cannot save run %s: nil result", runID)
	}
	state, err := json.Marshal(res.State)
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	startedUTC := startedAt.UTC()
	finishedUTC := startedUTC.Add(res.Duration)
	if _, err := tx.Exec(ctx, upsertRunSQL,
		runID, res.State.TargetName, string(res.Status), res.State.LastError,
		res.Steps, state, startedUTC, finishedUTC,
	); err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.Exec(ctx, deleteHistorySQL, runID); err != nil {
		return fmt.Errorf("failed to clear run history: %w", err)
	}
	if n := len(res.State.URLHistory); n > 0 {
		rows := make([][]interface{}, n)
		for i, u := range res.State.URLHistory {
			rows[i] = []interface{}{runID, i, u}
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"run_history"}, []string{"run_id", "seq", "url"}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy run history: %w", err)
		}
		if int(copied) != n {
			return fmt.Errorf("mismatch in copied history count: expected %d, got %d", n, copied)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run saved.", zap.String("run_id", runID), zap.String("status", string(res.Status)))
	return nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Record, error) {
	rows, err := s.pool.Query(ctx, selectRunSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	rec := &Record{ID: runID}
	var status string
	var state []byte
	if err := rows.Scan(&rec.Target, &status, &rec.LastError, &rec.Steps, &state, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}
	rec.Status = flow.Status(status)
	if err := json.Unmarshal(state, &rec.State); err != nil {
		return nil, fmt.Errorf("failed to decode run state: %w", err)
	}
	return rec, nil
}
