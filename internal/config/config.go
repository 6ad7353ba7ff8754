// Package config holds the verification harness settings and loads them
// from a YAML file, VERIFY_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"go/version"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override settings
const EnvPrefix = "VERIFY"

// Config is the effective configuration of one verification run
type Config struct {
	Target   TargetConfig   `mapstructure:"target" json:"target" yaml:"target"`
	Static   StaticConfig   `mapstructure:"static" json:"static" yaml:"static"`
	Examples ExamplesConfig `mapstructure:"examples" json:"examples" yaml:"examples"`
	Pipeline PipelineConfig `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Report   ReportConfig   `mapstructure:"report" json:"report" yaml:"report"`
	History  HistoryConfig  `mapstructure:"history" json:"history" yaml:"history"`
	Tracing  TracingConfig  `mapstructure:"tracing" json:"tracing" yaml:"tracing"`
	Serve    ServeConfig    `mapstructure:"serve" json:"serve" yaml:"serve"`
}

// TargetConfig names the source file under verification
type TargetConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
	Name string `mapstructure:"name" json:"name,omitempty" yaml:"name,omitempty"`
}

// StaticConfig configures the type check stage
type StaticConfig struct {
	Analyzer         string   `mapstructure:"analyzer" json:"analyzer" yaml:"analyzer"`
	GoVersion        string   `mapstructure:"go_version" json:"go_version" yaml:"go_version"`
	ExtraPaths       []string `mapstructure:"extra_paths" json:"extra_paths,omitempty" yaml:"extra_paths,omitempty"`
	Command          []string `mapstructure:"command" json:"command,omitempty" yaml:"command,omitempty"`
	ToolingExitCodes []int    `mapstructure:"tooling_exit_codes" json:"tooling_exit_codes" yaml:"tooling_exit_codes"`
}

// ExamplesConfig configures the doc example stage
type ExamplesConfig struct {
	Accessor   string   `mapstructure:"accessor" json:"accessor" yaml:"accessor"`
	Verbose    bool     `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	Options    []string `mapstructure:"options" json:"options,omitempty" yaml:"options,omitempty"`
	GoExamples bool     `mapstructure:"go_examples" json:"go_examples" yaml:"go_examples"`
}

// PipelineConfig configures how stages are scheduled
type PipelineConfig struct {
	Parallel bool          `mapstructure:"parallel" json:"parallel" yaml:"parallel"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// LogConfig configures diagnostic logging
type LogConfig struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" json:"json" yaml:"json"`
	File  string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

// MetricsConfig configures the Prometheus textfile written after a run
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" json:"textfile,omitempty" yaml:"textfile,omitempty"`
}

// ReportConfig configures the run report export
type ReportConfig struct {
	File string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

// HistoryConfig configures the run history store
type HistoryConfig struct {
	Type string `mapstructure:"type" json:"type,omitempty" yaml:"type,omitempty"`
	DSN  string `mapstructure:"dsn" json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Environment string  `mapstructure:"environment" json:"environment,omitempty" yaml:"environment,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
}

// ServeConfig configures the HTTP API
type ServeConfig struct {
	Addr       string   `mapstructure:"addr" json:"addr" yaml:"addr"`
	APIKeys    []string `mapstructure:"api_keys" json:"-" yaml:"-"`
	RateLimit  float64  `mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	Burst      int      `mapstructure:"burst" json:"burst" yaml:"burst"`
	TLSCert    string   `mapstructure:"tls_cert" json:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey     string   `mapstructure:"tls_key" json:"tls_key,omitempty" yaml:"tls_key,omitempty"`
	ClientCA   string   `mapstructure:"client_ca" json:"client_ca,omitempty" yaml:"client_ca,omitempty"`
	SelfSigned bool     `mapstructure:"tls_self_signed" json:"tls_self_signed" yaml:"tls_self_signed"`
}

// SetDefaults registers the default of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("target.path", "")
	v.SetDefault("target.name", "")

	v.SetDefault("static.analyzer", "types")
	v.SetDefault("static.go_version", "go1.21")
	v.SetDefault("static.extra_paths", []string{})
	v.SetDefault("static.command", []string{})
	v.SetDefault("static.tooling_exit_codes", []int{2})

	v.SetDefault("examples.accessor", "DoctestGlobals")
	v.SetDefault("examples.verbose", false)
	v.SetDefault("examples.options", []string{})
	v.SetDefault("examples.go_examples", true)

	v.SetDefault("pipeline.parallel", false)
	v.SetDefault("pipeline.timeout", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("report.file", "")

	v.SetDefault("history.type", "")
	v.SetDefault("history.dsn", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.api_keys", []string{})
	v.SetDefault("serve.rate_limit", 2.0)
	v.SetDefault("serve.burst", 5)
	v.SetDefault("serve.tls_cert", "")
	v.SetDefault("serve.tls_key", "")
	v.SetDefault("serve.client_ca", "")
	v.SetDefault("serve.tls_self_signed", false)
}

// Prepare sets defaults, environment binding and the config file search
// path on v. cfgFile, when set, is the only file considered.
func Prepare(v *viper.Viper, cfgFile string) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return
	}
	v.SetConfigName(".verify")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".verify"))
	}
}

// Read reads the configured file, if any. A missing file found by search
// is not an error; a missing file named explicitly is.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes the settings held by v and validates them
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late in a run
func (c *Config) Validate() error {
	if c.Target.Path == "" {
		return fmt.Errorf("target.path is required")
	}
	if !version.IsValid(c.Static.GoVersion) {
		return fmt.Errorf("static.go_version %q is not a valid Go version", c.Static.GoVersion)
	}

	switch c.Static.Analyzer {
	case "types":
	case "command":
		if len(c.Static.Command) == 0 {
			return fmt.Errorf("static.command is required for the command analyzer")
		}
	default:
		return fmt.Errorf("unknown static.analyzer %q", c.Static.Analyzer)
	}

	switch c.History.Type {
	case "", "sqlite", "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown history.type %q", c.History.Type)
	}
	if c.History.Type != "" && c.History.DSN == "" {
		return fmt.Errorf("history.dsn is required when history.type is set")
	}

	if (c.Serve.TLSCert == "") != (c.Serve.TLSKey == "") {
		return fmt.Errorf("serve.tls_cert and serve.tls_key must be set together")
	}
	if c.Serve.ClientCA != "" && !c.Serve.TLSEnabled() {
		return fmt.Errorf("serve.client_ca requires serve.tls_cert or serve.tls_self_signed")
	}
	if c.Serve.RateLimit < 0 || c.Serve.Burst < 0 {
		return fmt.Errorf("serve.rate_limit and serve.burst must not be negative")
	}
	if c.Pipeline.Timeout < 0 {
		return fmt.Errorf("pipeline.timeout must not be negative")
	}
	return nil
}

// TLSEnabled reports whether serve mode listens with TLS
func (s ServeConfig) TLSEnabled() bool {
	return s.TLSCert != "" || s.SelfSigned
}

// StaticPaths returns the paths the type check covers: the target followed
// by the configured extra paths.
func (c *Config) StaticPaths() []string {
	paths := make([]string, 0, 1+len(c.Static.ExtraPaths))
	paths = append(paths, c.Target.Path)
	return append(paths, c.Static.ExtraPaths...)
}
