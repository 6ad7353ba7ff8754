package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/docverify/internal/report"
)

func sampleRun(start time.Time, exit int) *report.Run {
	return &report.Run{
		RunID:             uuid.New().String(),
		Target:            "/src/calc.go",
		StartTime:         start,
		EndTime:           start.Add(time.Second),
		Duration:          time.Second,
		StaticPassed:      exit == 0,
		ExamplesAttempted: 3,
		ExitCode:          exit,
	}
}

func testRunHistory(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := sampleRun(base, 0)
	second := sampleRun(base.Add(time.Minute), 1)
	for _, r := range []*report.Run{first, second} {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}
	if err := store.SaveRun(ctx, first); err == nil {
		t.Error("SaveRun() of a duplicate run succeeded, expected error")
	}

	got, err := store.GetRun(ctx, second.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.ExitCode != 1 || got.Target != "/src/calc.go" {
		t.Errorf("GetRun() = %+v", got)
	}

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, expected %v", err, ErrRunNotFound)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) < 2 || runs[0].RunID != second.RunID {
		t.Errorf("ListRuns() first = %v, expected newest run %s", runs, second.RunID)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListRuns(1) returned %d runs", len(limited))
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewStore(context.Background(), Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	testRunHistory(t, store)
}

// TestPostgreSQLIntegration runs against a real database
// Set DATABASE_DSN environment variable to run: export DATABASE_DSN="postgresql://..."
func TestPostgreSQLIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: DATABASE_DSN not set")
	}

	store, err := NewStore(context.Background(), Config{Type: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL store: %v", err)
	}
	defer store.Close()

	testRunHistory(t, store)
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Type: "mysql"})
	if !errors.Is(err, ErrUnsupportedDatabase) {
		t.Errorf("NewStore(mysql) error = %v, expected %v", err, ErrUnsupportedDatabase)
	}
}

func TestQueryPlaceholders(t *testing.T) {
	s := &sqlStore{placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
	got := s.query("SELECT record FROM runs WHERE id = ? AND exit_code = ?")
	if got != "SELECT record FROM runs WHERE id = $1 AND exit_code = $2" {
		t.Errorf("query() = %q", got)
	}

	plain := &sqlStore{}
	if got := plain.query("id = ?"); got != "id = ?" {
		t.Errorf("query() without placeholder = %q", got)
	}
}
