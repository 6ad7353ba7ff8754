package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/docverify/internal/pipeline"
	"github.com/psantana5/docverify/internal/report"
)

var showSummary bool

var runCmd = &cobra.Command{
	Use:   "run [target.go]",
	Short: "Run the static check and the doc comment examples",
	Long: `Runs the static type check followed by the interactive doc comment
examples of the target and prints both reports to stdout.

Exit codes:
  0  both checks passed
  1  type errors or failing examples were reported
  2  a check could not run (missing analyzer, bad configuration)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.PersistentFlags().BoolVar(&showSummary, "summary", false, "print a summary table after the reports")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Pipeline.Timeout)
		defer cancel()
	}

	tp, err := newTracer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", map[string]interface{}{"error": err.Error()})
		}
	}()

	v, err := newVerifier(ctx, cfg, logger, tp)
	if err != nil {
		return err
	}
	defer v.Close()

	out := cmd.OutOrStdout()
	run, runErr := v.Verify(ctx, out)
	if showSummary {
		printSummary(out, run)
	}
	if runErr != nil {
		return &exitError{code: pipeline.ExitTooling, err: runErr}
	}
	if run.ExitCode != pipeline.ExitPass {
		return &exitError{code: run.ExitCode}
	}
	return nil
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func printSummary(w io.Writer, run *report.Run) {
	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")

	table.Append("Run ID", run.RunID)
	table.Append("Target", run.Target)
	table.Append("Analyzer", fmt.Sprintf("%s (%s)", run.Analyzer, run.GoVersion))
	table.Append("Static", fmt.Sprintf("%s (%d errors in %d files)", passFail(run.StaticPassed), run.TypeErrors, run.FilesChecked))
	table.Append("Examples", fmt.Sprintf("%s (%d of %d passed)", passFail(run.ExamplesPassed),
		run.ExamplesAttempted-run.ExamplesFailed, run.ExamplesAttempted))
	if run.LoadError != "" {
		table.Append("Load error", run.LoadError)
	}
	if run.ContextError != "" {
		table.Append("Context error", run.ContextError)
	}
	if run.ToolingError != "" {
		table.Append("Tooling error", run.ToolingError)
	}
	for _, st := range run.Stages {
		table.Append("Stage "+st.Stage, st.Duration().String())
	}
	table.Append("Duration", run.Duration.String())
	table.Append("Exit code", fmt.Sprintf("%d", run.ExitCode))

	table.Render()
}
