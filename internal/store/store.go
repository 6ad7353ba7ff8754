// Package store persists verification run records in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psantana5/docverify/internal/report"
	"github.com/psantana5/docverify/pkg/retry"
)

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrRunNotFound         = errors.New("run not found")
)

// Store keeps the history of verification runs
type Store interface {
	SaveRun(ctx context.Context, run *report.Run) error
	GetRun(ctx context.Context, id string) (*report.Run, error)
	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]*report.Run, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config holds database configuration
type Config struct {
	Type string // "sqlite" or "postgres"
	DSN  string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewStore creates a store based on configuration
func NewStore(ctx context.Context, config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgreSQLStore(ctx, config)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(ctx, config.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, config.Type)
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	target TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	duration_ms BIGINT NOT NULL,
	static_passed BOOLEAN NOT NULL,
	type_errors INTEGER NOT NULL,
	examples_attempted INTEGER NOT NULL,
	examples_failed INTEGER NOT NULL,
	exit_code INTEGER NOT NULL,
	record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// sqlStore holds the queries shared by both databases. Queries are
// written with "?" placeholders and rewritten for the driver.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

func (s *sqlStore) query(q string) string {
	if s.placeholder == nil {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(s.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveRun inserts run; saving the same run twice is an error
func (s *sqlStore) SaveRun(ctx context.Context, run *report.Run) error {
	record, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	insert := func() error {
		_, err := s.db.ExecContext(ctx, s.query(`
			INSERT INTO runs (id, target, started_at, duration_ms, static_passed, type_errors,
				examples_attempted, examples_failed, exit_code, record)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			run.RunID,
			run.Target,
			run.StartTime.UTC(),
			run.Duration.Milliseconds(),
			run.StaticPassed,
			run.TypeErrors,
			run.ExamplesAttempted,
			run.ExamplesFailed,
			run.ExitCode,
			string(record),
		)
		return err
	}
	if err := retry.Do(ctx, retry.DefaultConfig(), insert); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads one run by ID
func (s *sqlStore) GetRun(ctx context.Context, id string) (*report.Run, error) {
	var record string
	err := s.db.QueryRowContext(ctx, s.query(`SELECT record FROM runs WHERE id = ?`), id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return decodeRun(record)
}

// ListRuns returns the most recent runs first
func (s *sqlStore) ListRuns(ctx context.Context, limit int) ([]*report.Run, error) {
	q := `SELECT record FROM runs ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.query(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*report.Run
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decodeRun(record)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// HealthCheck pings the database
func (s *sqlStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func decodeRun(record string) (*report.Run, error) {
	var run report.Run
	if err := json.Unmarshal([]byte(record), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}
