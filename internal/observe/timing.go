// Package observe records when each verification stage started and ended.
package observe

import (
	"sync"
	"time"
)

// Timing records start/end timestamps only
type Timing struct {
	Stage       string    `json:"stage" yaml:"stage"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
}

// NewTiming creates timing with current start time
func NewTiming(stage string) *Timing {
	return &Timing{
		Stage:     stage,
		StartedAt: time.Now(),
	}
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = time.Now()
}

// Duration returns execution duration
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Timings collects stage timings in the order stages were started. It is
// safe for concurrent use.
type Timings struct {
	mu    sync.Mutex
	items []*Timing
}

// Start begins timing a stage
func (ts *Timings) Start(stage string) *Timing {
	t := NewTiming(stage)
	ts.mu.Lock()
	ts.items = append(ts.items, t)
	ts.mu.Unlock()
	return t
}

// List returns a copy of the recorded timings
func (ts *Timings) List() []Timing {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]Timing, len(ts.items))
	for i, t := range ts.items {
		out[i] = *t
	}
	return out
}

// Get returns the timing of stage, if recorded
func (ts *Timings) Get(stage string) (Timing, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range ts.items {
		if t.Stage == stage {
			return *t, true
		}
	}
	return Timing{}, false
}
