package report

import "sync"

// FailureSample summarises one failed run for quick inspection
type FailureSample struct {
	RunID          string  `json:"run_id"`
	Target         string  `json:"target"`
	Reason         string  `json:"reason"`
	Duration       float64 `json:"duration_seconds"`
	ExitCode       int     `json:"exit_code"`
	TypeErrors     int     `json:"type_errors"`
	ExamplesFailed int     `json:"examples_failed"`
}

// FailureLog keeps the most recent failed runs in a ring buffer
type FailureLog struct {
	samples []FailureSample
	maxSize int
	mu      sync.RWMutex
}

// NewFailureLog creates a failure log holding at most maxSize samples
func NewFailureLog(maxSize int) *FailureLog {
	return &FailureLog{
		samples: make([]FailureSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds r if it did not pass
func (f *FailureLog) Record(r *Run) {
	if r.ExitCode == 0 {
		return
	}

	sample := FailureSample{
		RunID:          r.RunID,
		Target:         r.Target,
		Reason:         failureReason(r),
		Duration:       r.Duration.Seconds(),
		ExitCode:       r.ExitCode,
		TypeErrors:     r.TypeErrors,
		ExamplesFailed: r.ExamplesFailed,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.samples) >= f.maxSize {
		f.samples = f.samples[1:]
	}
	f.samples = append(f.samples, sample)
}

// GetRecent returns up to n failures, newest first. n <= 0 returns all.
func (f *FailureLog) GetRecent(n int) []FailureSample {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || n > len(f.samples) {
		n = len(f.samples)
	}

	result := make([]FailureSample, n)
	for i := 0; i < n; i++ {
		result[i] = f.samples[len(f.samples)-1-i]
	}
	return result
}

// Count returns the number of samples held
func (f *FailureLog) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.samples)
}

func failureReason(r *Run) string {
	switch {
	case r.ToolingError != "":
		return "tooling: " + r.ToolingError
	case r.LoadError != "":
		return "load: " + r.LoadError
	case r.ContextError != "":
		return "context: " + r.ContextError
	case !r.StaticPassed && r.ExamplesFailed > 0:
		return "type errors and failing examples"
	case !r.StaticPassed:
		return "type errors"
	default:
		return "failing examples"
	}
}
