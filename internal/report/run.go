// Package report turns pipeline results into immutable run records and
// exports them as files, metrics and log lines.
package report

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/psantana5/docverify/internal/doctest"
	"github.com/psantana5/docverify/internal/observe"
	"github.com/psantana5/docverify/internal/pipeline"
	"github.com/psantana5/docverify/pkg/logging"
)

// Run is the immutable record of one verification run. Set once, never
// changed; metrics, history rows and log lines are all derived from it.
type Run struct {
	RunID     string `json:"run_id" yaml:"run_id"`
	Target    string `json:"target" yaml:"target"`
	Module    string `json:"module,omitempty" yaml:"module,omitempty"`
	Analyzer  string `json:"analyzer" yaml:"analyzer"`
	GoVersion string `json:"go_version" yaml:"go_version"`

	StartTime time.Time        `json:"start_time" yaml:"start_time"`
	EndTime   time.Time        `json:"end_time" yaml:"end_time"`
	Duration  time.Duration    `json:"duration_ns" yaml:"duration_ns"`
	Stages    []observe.Timing `json:"stages,omitempty" yaml:"stages,omitempty"`

	StaticPassed bool `json:"static_passed" yaml:"static_passed"`
	TypeErrors   int  `json:"type_errors" yaml:"type_errors"`
	FilesChecked int  `json:"files_checked" yaml:"files_checked"`

	ExamplesPassed    bool              `json:"examples_passed" yaml:"examples_passed"`
	ExamplesAttempted int               `json:"examples_attempted" yaml:"examples_attempted"`
	ExamplesFailed    int               `json:"examples_failed" yaml:"examples_failed"`
	Failures          []doctest.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`

	LoadError    string `json:"load_error,omitempty" yaml:"load_error,omitempty"`
	ContextError string `json:"context_error,omitempty" yaml:"context_error,omitempty"`
	ToolingError string `json:"tooling_error,omitempty" yaml:"tooling_error,omitempty"`

	ExitCode int      `json:"exit_code" yaml:"exit_code"`
	Host     HostInfo `json:"host" yaml:"host"`
}

// HostInfo identifies the machine a run executed on
type HostInfo struct {
	Hostname        string `json:"hostname" yaml:"hostname"`
	OS              string `json:"os" yaml:"os"`
	Platform        string `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty" yaml:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	Arch            string `json:"arch" yaml:"arch"`
	GoRuntime       string `json:"go_runtime" yaml:"go_runtime"`
}

// CollectHost gathers host details. Missing details are left empty.
func CollectHost() HostInfo {
	info := HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH, GoRuntime: runtime.Version()}
	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.PlatformVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}
	return info
}

// NewRun creates the record of a pipeline run. res may be partial when
// runErr reports a tooling failure.
func NewRun(res *pipeline.Result, runErr error, analyzerName, goVersion string, start, end time.Time, hostInfo HostInfo) *Run {
	r := &Run{
		RunID:     uuid.New().String(),
		Analyzer:  analyzerName,
		GoVersion: goVersion,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Host:      hostInfo,
		ExitCode:  pipeline.ExitTooling,
	}
	if runErr != nil {
		r.ToolingError = runErr.Error()
	}
	if res == nil {
		return r
	}

	r.Target = res.Target.Path
	if res.ResolvedPath != "" {
		r.Target = res.ResolvedPath
	}
	r.Module = res.Module
	r.Stages = res.Timings

	if res.Static != nil {
		r.StaticPassed = res.Static.Passed
		r.TypeErrors = res.Static.ErrorCount()
		r.FilesChecked = res.Static.FilesChecked
	}
	if res.Examples != nil {
		r.ExamplesAttempted = res.Examples.Attempted
		r.ExamplesFailed = res.Examples.Failed
		r.Failures = res.Examples.Failures
	}
	r.ExamplesPassed = res.ExamplesPassed()
	if res.LoadErr != nil {
		r.LoadError = res.LoadErr.Error()
	}
	if res.ContextErr != nil {
		r.ContextError = res.ContextErr.Error()
	}
	if runErr == nil {
		r.ExitCode = res.ExitCode()
	}
	return r
}

// Outcome is "pass", "fail" or "error"
func (r *Run) Outcome() string {
	switch r.ExitCode {
	case pipeline.ExitPass:
		return "pass"
	case pipeline.ExitFailure:
		return "fail"
	default:
		return "error"
	}
}

// LogSummary emits a one-line human-readable summary of the run
func (r *Run) LogSummary(logger *logging.Logger) {
	static := "PASS"
	if !r.StaticPassed {
		static = "FAIL"
	}
	logger.Info(fmt.Sprintf("RUN %s | target=%s | static=%s | examples=%d/%d | runtime=%.2fs | exit=%d",
		r.RunID,
		r.Target,
		static,
		r.ExamplesAttempted-r.ExamplesFailed,
		r.ExamplesAttempted,
		r.Duration.Seconds(),
		r.ExitCode,
	))
}
