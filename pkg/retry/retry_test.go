package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, expected 3", calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	sentinel := errors.New("connection refused")
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do() error = %v, expected wrapped %v", err, sentinel)
	}
	if calls != 4 {
		t.Errorf("calls = %d, expected 4", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	cfg := fastConfig()
	cfg.Retryable = IsTransient

	calls := 0
	permanent := errors.New("UNIQUE constraint failed: runs.run_id")
	err := Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Errorf("Do() error = %v, expected the permanent error unwrapped", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, expected 1", calls)
	}
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Do(ctx, fastConfig(), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, expected context.Canceled", err)
	}
	if called {
		t.Error("fn was called after cancellation")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{errors.New("pq: the database system is starting up"), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("pq: password authentication failed"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, expected %v", tt.err, got, tt.want)
		}
	}
}
