package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics are counters derived from run records only
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	typeErrors    prometheus.Counter
	examples      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastExitCode  prometheus.Gauge
	lastRunTime   prometheus.Gauge
}

// NewMetrics creates metrics registered on their own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_runs_total",
			Help: "Verification runs by outcome.",
		}, []string{"outcome"}),
		typeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docverify_type_errors_total",
			Help: "Type errors reported by the static check.",
		}),
		examples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_examples_total",
			Help: "Doc examples executed by result.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docverify_stage_duration_seconds",
			Help:    "Duration of each verification stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"stage"}),
		lastExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docverify_last_exit_code",
			Help: "Exit code of the most recent run.",
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docverify_last_run_timestamp_seconds",
			Help: "Completion time of the most recent run.",
		}),
	}
	m.registry.MustRegister(m.runs, m.typeErrors, m.examples, m.stageDuration, m.lastExitCode, m.lastRunTime)

	for _, outcome := range []string{"pass", "fail", "error"} {
		m.runs.WithLabelValues(outcome)
	}
	for _, result := range []string{"passed", "failed"} {
		m.examples.WithLabelValues(result)
	}
	return m
}

// Registry exposes the registry for HTTP export
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun updates every metric from a single run record
func (m *Metrics) RecordRun(r *Run) {
	m.runs.WithLabelValues(r.Outcome()).Inc()
	m.typeErrors.Add(float64(r.TypeErrors))
	m.examples.WithLabelValues("passed").Add(float64(r.ExamplesAttempted - r.ExamplesFailed))
	m.examples.WithLabelValues("failed").Add(float64(r.ExamplesFailed))
	for _, stage := range r.Stages {
		m.stageDuration.WithLabelValues(stage.Stage).Observe(stage.Duration().Seconds())
	}
	m.lastExitCode.Set(float64(r.ExitCode))
	m.lastRunTime.Set(float64(r.EndTime.Unix()))
}

// WriteTextfile writes the current metrics in Prometheus text format to
// path, replacing it atomically, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".docverify-metrics-*")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
