package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// Placeholders expanded in command arguments
const (
	GoVersionPlaceholder = "{go_version}"
	PathsPlaceholder     = "{paths}"
)

// CommandAnalyzer runs an external checker such as staticcheck or go vet.
// Its combined output is the report; its exit status is the verdict.
type CommandAnalyzer struct {
	command          []string
	toolingExitCodes []int
	dir              string
}

// NewCommandAnalyzer creates an analyzer that runs command. Exit codes in
// toolingExitCodes mean the tool itself failed rather than found problems.
func NewCommandAnalyzer(command []string, toolingExitCodes []int, dir string) (*CommandAnalyzer, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("command analyzer needs a command")
	}
	return &CommandAnalyzer{
		command:          command,
		toolingExitCodes: toolingExitCodes,
		dir:              dir,
	}, nil
}

// Name returns the command's program name
func (a *CommandAnalyzer) Name() string {
	return a.command[0]
}

// Analyze runs the command once over cfg.Paths
func (a *CommandAnalyzer) Analyze(ctx context.Context, cfg Config) (*Report, error) {
	argv := expandArgs(a.command, cfg)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = a.dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &ToolingError{Analyzer: a.Name(), Output: out.String(), Err: fmt.Errorf("failed to start: %w", err)}
		}
		exitCode = exitErr.ExitCode()
	}

	if slices.Contains(a.toolingExitCodes, exitCode) {
		return nil, &ToolingError{
			Analyzer: a.Name(),
			Output:   out.String(),
			Err:      fmt.Errorf("exited with status %d: %s", exitCode, strings.TrimSpace(out.String())),
		}
	}

	return &Report{
		Analyzer:     a.Name(),
		GoVersion:    cfg.GoVersion,
		Paths:        cfg.Paths,
		Text:         out.String(),
		FilesChecked: len(cfg.Paths),
		ExitCode:     exitCode,
		Passed:       exitCode == 0,
	}, nil
}

// expandArgs substitutes the version placeholder and splices the paths
// where a standalone paths placeholder appears.
func expandArgs(command []string, cfg Config) []string {
	argv := make([]string, 0, len(command)+len(cfg.Paths))
	for _, arg := range command {
		if arg == PathsPlaceholder {
			argv = append(argv, cfg.Paths...)
			continue
		}
		argv = append(argv, strings.ReplaceAll(arg, GoVersionPlaceholder, cfg.GoVersion))
	}
	return argv
}
