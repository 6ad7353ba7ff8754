package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/docverify/internal/config"
	"github.com/psantana5/docverify/internal/pipeline"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var (
	cfgFile string
	initErr error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verify [target.go]",
	Short: "Type-check a Go source file and run its doc comment examples",
	Long: `verify runs two checks against one Go source file and exits 0 only if
both pass:

  1. a static type check pinned to a Go language version
  2. the interactive ">>> " examples found in its doc comments

Settings come from .verify.yaml in the working directory,
$HOME/.verify/config.yaml, VERIFY_* environment variables and flags.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	RunE:          runVerify,
}

// exitError carries the process exit code of a finished command. A nil
// err means everything worth saying is already on stdout.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to a process exit code.
// Errors that carry no code are usage or tooling errors.
func ExitCode(err error) int {
	if err == nil {
		return pipeline.ExitPass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return pipeline.ExitTooling
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.verify.yaml or $HOME/.verify/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "write logs as JSON")
	flags.String("name", "", "module alias the target is loaded under (default: file name)")
	flags.String("go-version", "", "Go language version the type check is pinned to (default go1.21)")
	flags.String("analyzer", "", "static analyzer: types or command")
	flags.BoolP("verbose", "v", false, "report every example, not just failures")
	flags.Bool("parallel", false, "run the static and example stages concurrently")
	flags.String("report", "", "write the run report to this .json or .yaml file")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this textfile")

	bindFlags(rootCmd, map[string]string{
		"log.level":         "log-level",
		"log.json":          "log-json",
		"target.name":       "name",
		"static.go_version": "go-version",
		"static.analyzer":   "analyzer",
		"examples.verbose":  "verbose",
		"pipeline.parallel": "parallel",
		"report.file":       "report",
		"metrics.textfile":  "metrics-textfile",
	})
}

func bindFlags(c *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, c.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	v := viper.GetViper()
	config.Prepare(v, cfgFile)
	initErr = config.Read(v)
}

// loadConfig returns the effective configuration. A positional argument
// overrides target.path.
func loadConfig(v *viper.Viper, args []string) (*config.Config, error) {
	if initErr != nil {
		return nil, initErr
	}
	if len(args) > 0 {
		v.Set("target.path", args[0])
	}
	return config.Load(v)
}
