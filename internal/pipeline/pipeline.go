// Package pipeline runs the verification stages against one target: load
// the module, type check its source, then run its doc examples.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/docverify/internal/analyzer"
	"github.com/psantana5/docverify/internal/doctest"
	"github.com/psantana5/docverify/internal/module"
	"github.com/psantana5/docverify/internal/observe"
	"github.com/psantana5/docverify/pkg/logging"
	"github.com/psantana5/docverify/pkg/tracing"
)

// Stage names used for timings and spans
const (
	StageLoad     = "load"
	StageStatic   = "static"
	StageExamples = "examples"
)

const (
	staticLabel   = "[verify] Running static type check (via %s)...\n"
	examplesLabel = "[verify] Running docstring interactive examples (via doctest runner)...\n"
)

// Config is what a pipeline run needs to know about the target
type Config struct {
	Target     module.Target
	Accessor   string
	GoVersion  string
	Paths      []string
	Options    doctest.Option
	Verbose    bool
	GoExamples bool
	Parallel   bool
}

// LoadFunc loads a target module
type LoadFunc func(ctx context.Context, target module.Target, opts ...module.Option) (*module.Module, error)

// Pipeline drives one verification run
type Pipeline struct {
	cfg      Config
	analyzer analyzer.Analyzer
	logger   *logging.Logger
	tracer   trace.Tracer
	load     LoadFunc
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithTracer sets the tracer stage spans are recorded with
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithLoader replaces the module loader
func WithLoader(load LoadFunc) Option {
	return func(p *Pipeline) {
		if load != nil {
			p.load = load
		}
	}
}

// New creates a pipeline checking cfg.Paths with a
func New(cfg Config, a analyzer.Analyzer, logger *logging.Logger, opts ...Option) *Pipeline {
	if cfg.Accessor == "" {
		cfg.Accessor = module.DefaultAccessor
	}
	if cfg.GoVersion == "" {
		cfg.GoVersion = analyzer.DefaultGoVersion
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{cfg.Target.Path}
	}
	p := &Pipeline{
		cfg:      cfg,
		analyzer: a,
		logger:   logger,
		tracer:   otel.Tracer("github.com/psantana5/docverify/internal/pipeline"),
		load:     module.Load,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the stages and writes their console output to out. Reported
// failures are carried by the Result; the error is set only when a stage
// could not run at all, in which case the remaining stages are skipped.
func (p *Pipeline) Run(ctx context.Context, out io.Writer) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "verify.run", trace.WithAttributes(
		attribute.String("target.path", p.cfg.Target.Path),
		attribute.String("analyzer", p.analyzer.Name()),
	))
	defer span.End()

	res := &Result{Target: p.cfg.Target}
	timings := &observe.Timings{}
	defer func() { res.Timings = timings.List() }()

	mod := p.loadModule(ctx, res, timings, out)

	var err error
	if p.cfg.Parallel {
		err = p.runParallel(ctx, res, mod, timings, out)
	} else {
		err = p.runStatic(ctx, res, timings, out)
		if err == nil {
			err = p.runExamples(ctx, res, mod, timings, out)
		}
	}
	if err != nil {
		tracing.SetError(ctx, err)
		return res, err
	}

	span.SetAttributes(attribute.Int("exit_code", res.ExitCode()))
	p.logger.Info("Verification finished", map[string]interface{}{
		"target":          res.Target.Path,
		"static_passed":   res.StaticPassed(),
		"examples_passed": res.ExamplesPassed(),
		"exit_code":       res.ExitCode(),
	})
	return res, nil
}

// runParallel runs both checks concurrently into separate buffers and
// flushes them in the sequential order. A static stage that cannot run
// cancels the examples.
func (p *Pipeline) runParallel(ctx context.Context, res *Result, mod *module.Module, timings *observe.Timings, out io.Writer) error {
	var staticOut, examplesOut bytes.Buffer
	var staticErr, examplesErr error
	var wg sync.WaitGroup

	examplesCtx, cancelExamples := context.WithCancel(ctx)
	defer cancelExamples()

	staticRes, examplesRes := &Result{}, &Result{LoadErr: res.LoadErr}
	wg.Add(2)
	go func() {
		defer wg.Done()
		staticErr = p.runStatic(ctx, staticRes, timings, &staticOut)
		if staticErr != nil {
			cancelExamples()
		}
	}()
	go func() {
		defer wg.Done()
		examplesErr = p.runExamples(examplesCtx, examplesRes, mod, timings, &examplesOut)
	}()
	wg.Wait()

	res.Static = staticRes.Static
	res.Examples = examplesRes.Examples
	res.ContextErr = examplesRes.ContextErr

	if _, err := out.Write(staticOut.Bytes()); err != nil {
		return err
	}
	if staticErr != nil {
		return staticErr
	}
	if _, err := out.Write(examplesOut.Bytes()); err != nil {
		return err
	}
	return examplesErr
}

func (p *Pipeline) loadModule(ctx context.Context, res *Result, timings *observe.Timings, out io.Writer) *module.Module {
	ctx, span := p.tracer.Start(ctx, "verify."+StageLoad)
	defer span.End()
	timing := timings.Start(StageLoad)
	defer timing.Complete()

	mod, err := p.load(ctx, p.cfg.Target, module.WithAccessor(p.cfg.Accessor), module.WithStdout(out))
	if err != nil {
		res.LoadErr = err
		tracing.SetError(ctx, err)
		p.logger.Warn("Target failed to load", map[string]interface{}{"target": p.cfg.Target.Path, "error": err.Error()})
		return nil
	}
	res.Module = mod.Name
	res.ResolvedPath = mod.Path
	p.logger.Debug("Target loaded", map[string]interface{}{"path": mod.Path, "name": mod.Name})
	return mod
}

func (p *Pipeline) runStatic(ctx context.Context, res *Result, timings *observe.Timings, out io.Writer) error {
	ctx, span := p.tracer.Start(ctx, "verify."+StageStatic)
	defer span.End()
	timing := timings.Start(StageStatic)
	defer timing.Complete()

	fmt.Fprintf(out, staticLabel, p.analyzer.Name())
	report, err := p.analyzer.Analyze(ctx, analyzer.Config{GoVersion: p.cfg.GoVersion, Paths: p.cfg.Paths})
	if err != nil {
		tracing.SetError(ctx, err)
		return err
	}
	res.Static = report
	if _, err := io.WriteString(out, report.Text); err != nil {
		return err
	}

	span.SetAttributes(attribute.Bool("passed", report.Passed), attribute.Int("errors", report.ErrorCount()))
	p.logger.Debug("Static check finished", map[string]interface{}{
		"analyzer": report.Analyzer,
		"passed":   report.Passed,
		"errors":   report.ErrorCount(),
	})
	return nil
}

func (p *Pipeline) runExamples(ctx context.Context, res *Result, mod *module.Module, timings *observe.Timings, out io.Writer) error {
	ctx, span := p.tracer.Start(ctx, "verify."+StageExamples)
	defer span.End()
	timing := timings.Start(StageExamples)
	defer timing.Complete()

	io.WriteString(out, examplesLabel)
	if mod == nil {
		fmt.Fprintf(out, "%v\n", res.LoadErr)
		return nil
	}

	globals, err := p.globals(ctx, mod, mod.Path)
	if err != nil {
		res.ContextErr = err
		tracing.SetError(ctx, err)
		fmt.Fprintf(out, "%v\n", err)
		return nil
	}

	docs := (&doctest.Finder{GoExamples: p.cfg.GoExamples}).Find(mod.Fset, mod.File, mod.Name)
	runner := doctest.NewRunner(out, p.cfg.Options, p.cfg.Verbose)
	summary, err := runner.Run(ctx, docs, func(ctx context.Context) (doctest.Namespace, error) {
		return mod.NewSession(ctx, globals)
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return err
	}
	res.Examples = summary
	for _, f := range summary.Failures {
		tracing.AddEvent(ctx, "example.failed",
			attribute.String("docstring", f.Docstring),
			attribute.Int("line", f.Line),
			attribute.String("kind", string(f.Kind)),
		)
	}

	span.SetAttributes(attribute.Int("attempted", summary.Attempted), attribute.Int("failed", summary.Failed))
	p.logger.Debug("Examples finished", map[string]interface{}{
		"docstrings": len(docs),
		"attempted":  summary.Attempted,
		"failed":     summary.Failed,
	})
	return nil
}

// globals asks the module for its example bindings. A module without an
// accessor gets an empty mapping.
func (p *Pipeline) globals(ctx context.Context, provider module.GlobalsProvider, pathToSelf string) (map[string]any, error) {
	globals, err := provider.DoctestGlobals(ctx, pathToSelf)
	if errors.Is(err, module.ErrNoAccessor) {
		p.logger.Warn("Target defines no globals accessor, examples run without extra bindings", map[string]interface{}{"accessor": p.cfg.Accessor})
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := module.ValidateGlobals(p.cfg.Accessor, globals); err != nil {
		return nil, err
	}
	return globals, nil
}
