package pipeline

import (
	"github.com/psantana5/docverify/internal/analyzer"
	"github.com/psantana5/docverify/internal/doctest"
	"github.com/psantana5/docverify/internal/module"
	"github.com/psantana5/docverify/internal/observe"
)

// Exit codes of a verification run
const (
	ExitPass    = 0
	ExitFailure = 1
	ExitTooling = 2
)

// Result is the outcome of one pipeline run
type Result struct {
	Target       module.Target
	Module       string
	ResolvedPath string

	Static   *analyzer.Report
	Examples *doctest.Summary

	// LoadErr is set when the target could not be loaded; the examples
	// stage then fails without running.
	LoadErr error
	// ContextErr is set when the example bindings could not be built.
	ContextErr error

	Timings []observe.Timing
}

// StaticPassed reports whether the type check ran and passed
func (r *Result) StaticPassed() bool {
	return r.Static != nil && r.Static.Passed
}

// ExamplesPassed reports whether every example ran and passed
func (r *Result) ExamplesPassed() bool {
	return r.LoadErr == nil && r.ContextErr == nil && r.Examples != nil && r.Examples.Passed()
}

// ExitCode aggregates both stages: 0 only when both passed
func (r *Result) ExitCode() int {
	if r.StaticPassed() && r.ExamplesPassed() {
		return ExitPass
	}
	return ExitFailure
}
