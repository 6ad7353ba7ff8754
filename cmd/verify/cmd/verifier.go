package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/psantana5/docverify/internal/analyzer"
	"github.com/psantana5/docverify/internal/config"
	"github.com/psantana5/docverify/internal/doctest"
	"github.com/psantana5/docverify/internal/module"
	"github.com/psantana5/docverify/internal/pipeline"
	"github.com/psantana5/docverify/internal/report"
	"github.com/psantana5/docverify/internal/store"
	"github.com/psantana5/docverify/pkg/logging"
	"github.com/psantana5/docverify/pkg/tracing"
)

// verifier runs the pipeline and feeds every finished run to the
// configured sinks: report file, metrics and history.
type verifier struct {
	cfg      *config.Config
	logger   *logging.Logger
	analyzer analyzer.Analyzer
	pipeline *pipeline.Pipeline
	metrics  *report.Metrics
	history  store.Store
	host     report.HostInfo
}

// newLogger creates the command's logger. Without a log file it writes
// to w, the command's stderr.
func newLogger(cfg config.LogConfig, w io.Writer) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	if cfg.File != "" {
		return logging.NewFileLogger(cfg.File, level, cfg.JSON)
	}
	logger := logging.NewLogger(level, cfg.JSON)
	logger.SetOutput(w)
	return logger, nil
}

func newTracer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*tracing.Provider, error) {
	return tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "docverify",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
}

func newVerifier(ctx context.Context, cfg *config.Config, logger *logging.Logger, tp *tracing.Provider) (*verifier, error) {
	a, err := analyzer.New(analyzer.Options{
		Kind:             cfg.Static.Analyzer,
		Command:          cfg.Static.Command,
		ToolingExitCodes: cfg.Static.ToolingExitCodes,
	})
	if err != nil {
		return nil, err
	}

	options, err := doctest.ParseOptions(cfg.Examples.Options)
	if err != nil {
		return nil, fmt.Errorf("examples.options: %w", err)
	}

	p := pipeline.New(pipeline.Config{
		Target:     module.Target{Path: cfg.Target.Path, Name: cfg.Target.Name},
		Accessor:   cfg.Examples.Accessor,
		GoVersion:  cfg.Static.GoVersion,
		Paths:      cfg.StaticPaths(),
		Options:    options,
		Verbose:    cfg.Examples.Verbose,
		GoExamples: cfg.Examples.GoExamples,
		Parallel:   cfg.Pipeline.Parallel,
	}, a, logger, pipeline.WithTracer(tp.Tracer()))

	v := &verifier{
		cfg:      cfg,
		logger:   logger,
		analyzer: a,
		pipeline: p,
		metrics:  report.NewMetrics(),
		host:     report.CollectHost(),
	}

	if cfg.History.Type != "" {
		v.history, err = store.NewStore(ctx, store.Config{Type: cfg.History.Type, DSN: cfg.History.DSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		logger.Debug("Run history enabled", map[string]interface{}{"type": cfg.History.Type})
	}
	return v, nil
}

// Verify runs the pipeline once. Failures to write the report, metrics or
// history are logged and do not change the run's outcome.
func (v *verifier) Verify(ctx context.Context, out io.Writer) (*report.Run, error) {
	start := time.Now()
	res, runErr := v.pipeline.Run(ctx, out)
	run := report.NewRun(res, runErr, v.analyzer.Name(), v.cfg.Static.GoVersion, start, time.Now(), v.host)
	run.LogSummary(v.logger)

	logger := v.logger.WithField("run_id", run.RunID)
	v.metrics.RecordRun(run)
	if path := v.cfg.Report.File; path != "" {
		if err := report.Export(run, path); err != nil {
			logger.Error("Failed to write run report", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}
	if path := v.cfg.Metrics.Textfile; path != "" {
		if err := v.metrics.WriteTextfile(path); err != nil {
			logger.Error("Failed to write metrics textfile", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}
	if v.history != nil {
		if err := v.history.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("Failed to save run history", map[string]interface{}{"error": err.Error()})
		}
	}
	return run, runErr
}

// Close releases the history store
func (v *verifier) Close() error {
	if v.history != nil {
		return v.history.Close()
	}
	return nil
}
