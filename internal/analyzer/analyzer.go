// Package analyzer runs a static checker over a fixed list of Go source
// paths and returns its report text unchanged.
package analyzer

import (
	"context"
	"fmt"
)

// DefaultGoVersion is the language version files are checked against
// unless configured otherwise.
const DefaultGoVersion = "go1.21"

// Config is what an analyzer is invoked with
type Config struct {
	GoVersion string   `json:"go_version" yaml:"go_version"`
	Paths     []string `json:"paths" yaml:"paths"`
}

// Analyzer is the static check collaborator. Analyze returns a
// *ToolingError when the analyzer cannot run at all; findings in the
// checked sources are reported through the Report instead.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, cfg Config) (*Report, error)
}

// Diagnostic is one finding at a source position
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// String renders the diagnostic as file:line:col: error: message
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: error: %s", d.File, d.Line, d.Column, d.Message)
}

// Report is the outcome of one analyzer run. Text is written out as-is.
type Report struct {
	Analyzer     string       `json:"analyzer"`
	GoVersion    string       `json:"go_version"`
	Paths        []string     `json:"paths"`
	Text         string       `json:"text"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty"`
	FilesChecked int          `json:"files_checked"`
	ExitCode     int          `json:"exit_code"`
	Passed       bool         `json:"passed"`
}

// ErrorCount returns the number of findings. Reports from external
// commands carry no structured diagnostics, so a failing command counts as one.
func (r *Report) ErrorCount() int {
	if len(r.Diagnostics) > 0 || r.Passed {
		return len(r.Diagnostics)
	}
	return 1
}

// ToolingError means the analyzer itself could not run
type ToolingError struct {
	Analyzer string
	Output   string
	Err      error
}

// Error implements error interface
func (e *ToolingError) Error() string {
	return fmt.Sprintf("static analyzer %s could not run: %v", e.Analyzer, e.Err)
}

// Unwrap implements error unwrapping
func (e *ToolingError) Unwrap() error {
	return e.Err
}

// Options selects and configures an analyzer implementation
type Options struct {
	Kind             string
	Command          []string
	ToolingExitCodes []int
	Dir              string
}

// New creates the analyzer named by opts.Kind: "types" (default) or "command"
func New(opts Options) (Analyzer, error) {
	switch opts.Kind {
	case "", "types":
		return NewTypesAnalyzer(), nil
	case "command":
		return NewCommandAnalyzer(opts.Command, opts.ToolingExitCodes, opts.Dir)
	default:
		return nil, fmt.Errorf("unknown analyzer %q (want types or command)", opts.Kind)
	}
}
