package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configShowCmd = &cobra.Command{
	Use:   "show [target.go]",
	Short: "Print the effective configuration",
	Long: `Prints the configuration a run would use after merging defaults, the
config file, VERIFY_* environment variables and flags. API keys are never
printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "yaml", "Output format: yaml, json")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch configOutput {
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", configOutput)
	}
}
