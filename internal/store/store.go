// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id        TEXT PRIMARY KEY,
    platform      TEXT NOT NULL,
    document_path TEXT NOT NULL,
    title         TEXT NOT NULL,
    title_found   BOOLEAN NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL,
    fatal_kind    TEXT NOT NULL DEFAULT '',
    fatal_error   TEXT NOT NULL DEFAULT '',
    diagnostics   JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS fill_outcomes (
    run_id          TEXT NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
    position        INTEGER NOT NULL,
    role            TEXT NOT NULL,
    attempted       BOOLEAN NOT NULL,
    succeeded       BOOLEAN NOT NULL,
    verified_length INTEGER,
    strategy_used   INTEGER NOT NULL,
    technique       TEXT NOT NULL DEFAULT '',
    warning         TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
);`

const sqlInsertRun = `
    INSERT INTO runs (run_id, platform, document_path, title, title_found, started_at, finished_at, fatal_kind, fatal_error, diagnostics)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (run_id) DO UPDATE SET
        finished_at = EXCLUDED.finished_at,
        fatal_kind = EXCLUDED.fatal_kind,
        fatal_error = EXCLUDED.fatal_error,
        diagnostics = EXCLUDED.diagnostics;
`

const sqlDeleteOutcomes = `DELETE FROM fill_outcomes WHERE run_id = $1;`

var outcomeColumns = []string{
	"run_id", "position", "role", "attempted", "succeeded", "verified_length", "strategy_used", "technique", "warning",
}

// Store persists run reports in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Connect opens a pgx pool for databaseURL and wraps it in a Store. The
// returned close function releases the pool.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes a report and its outcomes in one transaction. Saving the
// same run again replaces its outcomes.
func (s *Store) SaveRun(ctx context.Context, report *schemas.RunReport) error {
	diag, err := json.Marshal(report.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	if report.Diagnostics == nil {
		diag = []byte("[]")
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

	if _, err := tx.Exec(ctx, sqlInsertRun,
		report.RunID, report.Platform, report.DocumentPath, report.Title, report.TitleFound,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		string(report.FatalKind), report.FatalError, diag,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteOutcomes, report.RunID); err != nil {
		return fmt.Errorf("failed to clear outcomes of run %s: %w", report.RunID, err)
	}

	if len(report.Outcomes) > 0 {
		rows := make([][]any, len(report.Outcomes))
		for i, o := range report.Outcomes {
			var verified any
			if o.VerifiedLength != nil {
				verified = int32(*o.VerifiedLength)
			}
			rows[i] = []any{
				report.RunID, int32(i), string(o.Role), o.Attempted, o.Succeeded,
				verified, int32(o.StrategyUsed), o.Technique, o.Warning,
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"fill_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy fill outcomes: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(rows), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", report.RunID), zap.Int("outcomes", len(report.Outcomes)))
	return nil
}

const sqlRecentRuns = `
    SELECT run_id, platform, document_path, title, title_found, started_at, finished_at, fatal_kind, fatal_error
    FROM runs
    WHERE platform = $1
    ORDER BY started_at DESC
    LIMIT $2;
`

// RecentRuns lists the latest runs of a platform without their outcomes.
func (s *Store) RecentRuns(ctx context.Context, platform string, limit int) ([]schemas.RunReport, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, platform, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunReport
	for rows.Next() {
		var r schemas.RunReport
		var kind string
		var started, finished time.Time
		if err := rows.Scan(&r.RunID, &r.Platform, &r.DocumentPath, &r.Title, &r.TitleFound,
			&started, &finished, &kind, &r.FatalError); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.StartedAt, r.FinishedAt = started.UTC(), finished.UTC()
		r.FatalKind = schemas.ErrorKind(kind)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
