package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/docverify/internal/analyzer"
	"github.com/psantana5/docverify/internal/doctest"
	"github.com/psantana5/docverify/internal/module"
	"github.com/psantana5/docverify/pkg/logging"
)

const (
	staticHeader   = "[verify] Running static type check (via go/types)...\n"
	examplesHeader = "[verify] Running docstring interactive examples (via doctest runner)...\n"
)

func run(t *testing.T, path string, modify ...func(*Config)) (*Result, string, error) {
	t.Helper()
	cfg := Config{
		Target:     module.Target{Path: path},
		GoVersion:  "go1.21",
		GoExamples: true,
	}
	for _, m := range modify {
		m(&cfg)
	}
	var out bytes.Buffer
	p := New(cfg, analyzer.NewTypesAnalyzer(), logging.Discard())
	res, err := p.Run(context.Background(), &out)
	return res, out.String(), err
}

func absPath(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(abs)
	require.NoError(t, err)
	return resolved
}

func TestCleanModule(t *testing.T) {
	res, out, err := run(t, "testdata/clean.go")
	require.NoError(t, err)

	expected := staticHeader +
		"Success: no issues found in 1 source file\n" +
		examplesHeader
	assert.Equal(t, expected, out)
	assert.Equal(t, ExitPass, res.ExitCode())
	assert.Equal(t, "shop", res.Module)
	assert.Equal(t, 3, res.Examples.Attempted)
	require.Len(t, res.Timings, 3)
	assert.Equal(t, StageLoad, res.Timings[0].Stage)
}

func TestExampleMismatch(t *testing.T) {
	res, out, err := run(t, "testdata/mismatch.go")
	require.NoError(t, err)

	expected := staticHeader +
		"Success: no issues found in 1 source file\n" +
		examplesHeader +
		"**********************************************************************\n" +
		"File \"" + absPath(t, "testdata/mismatch.go") + "\", line 5, in arith.Add\n" +
		"Failed example:\n" +
		"    arith.Add(2, 2)\n" +
		"Expected:\n" +
		"    5\n" +
		"Got:\n" +
		"    4\n" +
		"**********************************************************************\n" +
		"1 item had failures:\n" +
		"   1 of   1 in arith.Add\n" +
		"***Test Failed*** 1 failure.\n"
	assert.Equal(t, expected, out)
	assert.Equal(t, ExitFailure, res.ExitCode())
	assert.True(t, res.StaticPassed())
	require.Len(t, res.Examples.Failures, 1)
	assert.Equal(t, "arith.Add", res.Examples.Failures[0].Docstring)
}

func TestTypeError(t *testing.T) {
	res, out, err := run(t, "testdata/typeerr.go")
	require.NoError(t, err)

	assert.Contains(t, out, "testdata/typeerr.go:6:")
	assert.Contains(t, out, "Found 1 error in 1 file (checked 1 source file)\n")
	assert.False(t, res.StaticPassed())
	assert.Equal(t, ExitFailure, res.ExitCode())
}

func TestSyntaxErrorStillRunsStaticStage(t *testing.T) {
	res, out, err := run(t, "testdata/syntaxerr.go")
	require.NoError(t, err)

	var loadErr *module.LoadError
	require.ErrorAs(t, res.LoadErr, &loadErr)
	assert.Equal(t, "parse", loadErr.Op)

	assert.True(t, strings.HasPrefix(out, staticHeader+"testdata/syntaxerr.go:3:"))
	idx := strings.Index(out, examplesHeader)
	require.NotEqual(t, -1, idx)
	assert.Equal(t, res.LoadErr.Error()+"\n", out[idx+len(examplesHeader):])
	assert.Equal(t, ExitFailure, res.ExitCode())
}

func TestUnboundName(t *testing.T) {
	res, out, err := run(t, "testdata/unbound.go")
	require.NoError(t, err)

	require.Len(t, res.Examples.Failures, 1)
	assert.Equal(t, doctest.KindUnboundName, res.Examples.Failures[0].Kind)
	assert.Contains(t, out, "panic: undefined: FACTOR")
	assert.Equal(t, ExitFailure, res.ExitCode())
}

func TestInvalidGlobalKey(t *testing.T) {
	res, out, err := run(t, "testdata/badkey.go")
	require.NoError(t, err)

	var ctxErr *module.ContextError
	require.ErrorAs(t, res.ContextErr, &ctxErr)
	assert.Equal(t, "not-a-name", ctxErr.Key)
	assert.Contains(t, out, examplesHeader+res.ContextErr.Error()+"\n")
	assert.Nil(t, res.Examples)
	assert.Equal(t, ExitFailure, res.ExitCode())
}

func TestSelfPathReachesAccessor(t *testing.T) {
	res, _, err := run(t, "testdata/selfpath.go")
	require.NoError(t, err)
	assert.Equal(t, absPath(t, "testdata/selfpath.go"), res.ResolvedPath)
	assert.Equal(t, ExitPass, res.ExitCode())
}

func TestRunsAreIdempotent(t *testing.T) {
	_, first, err := run(t, "testdata/mismatch.go")
	require.NoError(t, err)
	_, second, err := run(t, "testdata/mismatch.go")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParallelMatchesSequential(t *testing.T) {
	for _, path := range []string{"testdata/clean.go", "testdata/mismatch.go", "testdata/syntaxerr.go"} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			seqRes, sequential, err := run(t, path)
			require.NoError(t, err)
			parRes, parallel, err := run(t, path, func(c *Config) { c.Parallel = true })
			require.NoError(t, err)

			assert.Equal(t, sequential, parallel)
			assert.Equal(t, seqRes.ExitCode(), parRes.ExitCode())
		})
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string { return "broken" }

func (failingAnalyzer) Analyze(context.Context, analyzer.Config) (*analyzer.Report, error) {
	return nil, &analyzer.ToolingError{Analyzer: "broken", Err: errors.New("not installed")}
}

func TestToolingErrorAborts(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		var out bytes.Buffer
		p := New(Config{Target: module.Target{Path: "testdata/clean.go"}, Parallel: parallel}, failingAnalyzer{}, logging.Discard())

		_, err := p.Run(context.Background(), &out)

		var te *analyzer.ToolingError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "[verify] Running static type check (via broken)...\n", out.String())
	}
}

// gatedAnalyzer fails once marker exists
type gatedAnalyzer struct {
	marker string
}

func (gatedAnalyzer) Name() string { return "gated" }

func (a gatedAnalyzer) Analyze(context.Context, analyzer.Config) (*analyzer.Report, error) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(a.marker); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, &analyzer.ToolingError{Analyzer: "gated", Err: errors.New("crashed")}
}

func TestParallelToolingErrorCancelsExamples(t *testing.T) {
	dir := t.TempDir()
	started := filepath.Join(dir, "started")
	finished := filepath.Join(dir, "finished")
	target := filepath.Join(dir, "slow.go")
	src := fmt.Sprintf(`// Package slow has examples that take a while.
package slow

import (
	"os"
	"time"
)

// Touch creates path.
//
//	>>> slow.Touch(%q)
//	>>> slow.Wait()
//	>>> slow.Touch(%q)
func Touch(path string) { os.WriteFile(path, nil, 0644) }

// Wait sleeps for up to five seconds.
func Wait() {
	for i := 0; i < 500; i++ {
		time.Sleep(10 * time.Millisecond)
	}
}
`, started, finished)
	require.NoError(t, os.WriteFile(target, []byte(src), 0644))

	p := New(Config{Target: module.Target{Path: target}, Parallel: true}, gatedAnalyzer{marker: started}, logging.Discard())
	_, err := p.Run(context.Background(), &bytes.Buffer{})

	var te *analyzer.ToolingError
	require.ErrorAs(t, err, &te)
	_, statErr := os.Stat(finished)
	assert.True(t, os.IsNotExist(statErr), "examples kept running after the static stage failed")
}

func TestStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	spans := func() map[string]sdktrace.ReadOnlySpan {
		byName := make(map[string]sdktrace.ReadOnlySpan)
		for _, s := range recorder.Ended() {
			byName[s.Name()] = s
		}
		return byName
	}

	p := New(Config{Target: module.Target{Path: "testdata/mismatch.go"}}, analyzer.NewTypesAnalyzer(), logging.Discard(), WithTracer(tp.Tracer("test")))
	_, err := p.Run(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)

	examples, ok := spans()["verify."+StageExamples]
	require.True(t, ok)
	require.NotEmpty(t, examples.Events())
	assert.Equal(t, "example.failed", examples.Events()[0].Name)

	p = New(Config{Target: module.Target{Path: "testdata/clean.go"}}, failingAnalyzer{}, logging.Discard(), WithTracer(tp.Tracer("test")))
	_, err = p.Run(context.Background(), &bytes.Buffer{})
	require.Error(t, err)

	static := spans()["verify."+StageStatic]
	require.NotNil(t, static)
	assert.Equal(t, codes.Error, static.Status().Code)
	assert.Equal(t, codes.Error, spans()["verify.run"].Status().Code)
}

func TestExitCode(t *testing.T) {
	passed := &analyzer.Report{Passed: true}
	failed := &analyzer.Report{Passed: false}
	ok := &doctest.Summary{Attempted: 1}
	bad := &doctest.Summary{Attempted: 1, Failed: 1}

	tests := []struct {
		name string
		res  Result
		want int
	}{
		{"both pass", Result{Static: passed, Examples: ok}, ExitPass},
		{"static fails", Result{Static: failed, Examples: ok}, ExitFailure},
		{"examples fail", Result{Static: passed, Examples: bad}, ExitFailure},
		{"load error", Result{Static: passed, LoadErr: errors.New("x")}, ExitFailure},
		{"context error", Result{Static: passed, Examples: ok, ContextErr: errors.New("x")}, ExitFailure},
		{"no static report", Result{Examples: ok}, ExitFailure},
	}

	for _, tt := range tests {
		if got := tt.res.ExitCode(); got != tt.want {
			t.Errorf("%s: ExitCode() = %d, expected %d", tt.name, got, tt.want)
		}
	}
}
