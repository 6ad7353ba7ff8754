package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/docverify/internal/analyzer"
	"github.com/psantana5/docverify/internal/doctest"
	"github.com/psantana5/docverify/internal/module"
	"github.com/psantana5/docverify/internal/observe"
	"github.com/psantana5/docverify/internal/pipeline"
	"github.com/psantana5/docverify/pkg/logging"
)

var (
	start = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	end   = start.Add(2 * time.Second)
)

func failingResult() *pipeline.Result {
	return &pipeline.Result{
		Target:       module.Target{Path: "calc.go"},
		Module:       "calc",
		ResolvedPath: "/src/calc.go",
		Static:       &analyzer.Report{Analyzer: "go/types", Passed: true, FilesChecked: 1},
		Examples: &doctest.Summary{
			Attempted: 4,
			Failed:    1,
			Failures:  []doctest.Failure{{Docstring: "calc.Add", Line: 5, Kind: doctest.KindMismatch}},
		},
		Timings: []observe.Timing{{Stage: "static", StartedAt: start, CompletedAt: start.Add(time.Second)}},
	}
}

func TestNewRun(t *testing.T) {
	r := NewRun(failingResult(), nil, "go/types", "go1.21", start, end, HostInfo{Hostname: "ci"})

	assert.Len(t, r.RunID, 36)
	assert.Equal(t, "/src/calc.go", r.Target)
	assert.Equal(t, 2*time.Second, r.Duration)
	assert.True(t, r.StaticPassed)
	assert.False(t, r.ExamplesPassed)
	assert.Equal(t, 4, r.ExamplesAttempted)
	assert.Equal(t, 1, r.ExamplesFailed)
	assert.Equal(t, pipeline.ExitFailure, r.ExitCode)
	assert.Equal(t, "fail", r.Outcome())
}

func TestNewRunTooling(t *testing.T) {
	r := NewRun(nil, errors.New("staticcheck: not found"), "command", "go1.21", start, end, HostInfo{})
	assert.Equal(t, pipeline.ExitTooling, r.ExitCode)
	assert.Equal(t, "error", r.Outcome())
	assert.Equal(t, "staticcheck: not found", r.ToolingError)
}

func TestExport(t *testing.T) {
	r := NewRun(failingResult(), nil, "go/types", "go1.21", start, end, HostInfo{Hostname: "ci"})
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "run.json")
	require.NoError(t, Export(r, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.RunID, decoded["run_id"])
	assert.Equal(t, float64(1), decoded["exit_code"])

	yamlPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, Export(r, yamlPath))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, "calc", fromYAML["module"])
}

func TestEncodeUnknownFormat(t *testing.T) {
	assert.Error(t, Encode(&bytes.Buffer{}, &Run{}, "xml"))
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordRun(NewRun(failingResult(), nil, "go/types", "go1.21", start, end, HostInfo{}))

	path := filepath.Join(t.TempDir(), "docverify.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, line := range []string{
		`docverify_runs_total{outcome="fail"} 1`,
		`docverify_runs_total{outcome="pass"} 0`,
		`docverify_examples_total{result="passed"} 3`,
		`docverify_examples_total{result="failed"} 1`,
		`docverify_stage_duration_seconds_count{stage="static"} 1`,
		`docverify_last_exit_code 1`,
	} {
		assert.Contains(t, text, line+"\n")
	}
}

func TestFailureLog(t *testing.T) {
	log := NewFailureLog(2)
	passing := &Run{RunID: "ok", ExitCode: 0}
	log.Record(passing)
	assert.Equal(t, 0, log.Count())

	for _, id := range []string{"a", "b", "c"} {
		log.Record(&Run{RunID: id, ExitCode: 1, StaticPassed: true, ExamplesFailed: 1})
	}
	recent := log.GetRecent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].RunID)
	assert.Equal(t, "b", recent[1].RunID)
	assert.Equal(t, "failing examples", recent[0].Reason)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		run  Run
		want string
	}{
		{Run{ToolingError: "x"}, "tooling: x"},
		{Run{LoadError: "y"}, "load: y"},
		{Run{StaticPassed: true, ContextError: "z"}, "context: z"},
		{Run{ExamplesFailed: 2}, "type errors and failing examples"},
		{Run{}, "type errors"},
	}
	for _, tt := range tests {
		if got := failureReason(&tt.run); got != tt.want {
			t.Errorf("failureReason(%+v) = %q, expected %q", tt.run, got, tt.want)
		}
	}
}

func TestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	r := NewRun(failingResult(), nil, "go/types", "go1.21", start, end, HostInfo{})
	r.LogSummary(logger)

	line := buf.String()
	assert.True(t, strings.Contains(line, "RUN "+r.RunID+" | target=/src/calc.go | static=PASS | examples=3/4 | runtime=2.00s | exit=1"), line)
}
