package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/docverify/internal/config"
	"github.com/psantana5/docverify/internal/report"
	"github.com/psantana5/docverify/internal/store"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored verification runs",
	Long:  `Lists the most recent runs saved to the run history store (history.type and history.dsn).`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if initErr != nil {
		return initErr
	}
	var hc config.HistoryConfig
	if err := v.UnmarshalKey("history", &hc); err != nil {
		return fmt.Errorf("failed to decode history config: %w", err)
	}
	if hc.Type == "" {
		return fmt.Errorf("run history is not configured: set history.type and history.dsn")
	}
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	s, err := store.NewStore(cmd.Context(), store.Config{Type: hc.Type, DSN: hc.DSN})
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyOutput == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	printHistory(cmd, runs)
	return nil
}

func printHistory(cmd *cobra.Command, runs []*report.Run) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Run ID", "Started", "Target", "Static", "Examples", "Duration", "Outcome")

	for _, r := range runs {
		table.Append(
			shortID(r.RunID),
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			r.Target,
			fmt.Sprintf("%s (%d)", passFail(r.StaticPassed), r.TypeErrors),
			fmt.Sprintf("%d/%d", r.ExamplesAttempted-r.ExamplesFailed, r.ExamplesAttempted),
			r.Duration.Round(time.Millisecond).String(),
			r.Outcome(),
		)
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
