package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/psantana5/docverify/pkg/retry"
)

// PostgreSQLStore is a PostgreSQL-based run history
type PostgreSQLStore struct {
	sqlStore
}

// NewPostgreSQLStore connects to config.DSN and creates the schema
func NewPostgreSQLStore(ctx context.Context, config Config) (*PostgreSQLStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(orDefault(config.MaxOpenConns, 10))
	db.SetMaxIdleConns(orDefault(config.MaxIdleConns, 2))
	db.SetConnMaxLifetime(orDefaultDuration(config.ConnMaxLifetime, 5*time.Minute))
	db.SetConnMaxIdleTime(orDefaultDuration(config.ConnMaxIdleTime, time.Minute))

	ping := func() error { return db.PingContext(ctx) }
	if err := retry.Do(ctx, retry.DefaultConfig(), ping); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{sqlStore{
		db:          db,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
