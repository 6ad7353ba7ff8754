package analyzer

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"go/version"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TypesAnalyzer type-checks sources in-process with go/types, pinned to
// the configured language version.
type TypesAnalyzer struct{}

// NewTypesAnalyzer creates a go/types analyzer
func NewTypesAnalyzer() *TypesAnalyzer {
	return &TypesAnalyzer{}
}

// Name returns the analyzer name
func (a *TypesAnalyzer) Name() string {
	return "go/types"
}

// checkUnit is a set of files sharing a directory and package clause
type checkUnit struct {
	pkg   string
	files []*ast.File
}

// Analyze parses and type-checks every file named by cfg.Paths
func (a *TypesAnalyzer) Analyze(ctx context.Context, cfg Config) (*Report, error) {
	if !version.IsValid(cfg.GoVersion) {
		return nil, &ToolingError{Analyzer: a.Name(), Err: fmt.Errorf("invalid go version %q", cfg.GoVersion)}
	}
	if len(cfg.Paths) == 0 {
		return nil, &ToolingError{Analyzer: a.Name(), Err: errors.New("no paths to check")}
	}

	files, err := expandPaths(cfg.Paths)
	if err != nil {
		return nil, &ToolingError{Analyzer: a.Name(), Err: err}
	}

	fset := token.NewFileSet()
	order := make(map[string]int, len(files))
	var diags []Diagnostic
	var units []*checkUnit
	unitByKey := make(map[string]*checkUnit)

	for idx, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, &ToolingError{Analyzer: a.Name(), Err: err}
		}
		order[path] = idx

		f, err := parser.ParseFile(fset, path, nil, parser.AllErrors|parser.ParseComments)
		if err != nil {
			var list scanner.ErrorList
			if !errors.As(err, &list) {
				return nil, &ToolingError{Analyzer: a.Name(), Err: err}
			}
			for _, e := range list {
				diags = append(diags, Diagnostic{File: path, Line: e.Pos.Line, Column: e.Pos.Column, Message: e.Msg})
			}
			continue
		}

		key := filepath.Dir(path) + "\x00" + f.Name.Name
		unit, ok := unitByKey[key]
		if !ok {
			unit = &checkUnit{pkg: f.Name.Name}
			unitByKey[key] = unit
			units = append(units, unit)
		}
		unit.files = append(unit.files, f)
	}

	imp := importer.ForCompiler(fset, "source", nil)
	for _, unit := range units {
		conf := types.Config{
			GoVersion: cfg.GoVersion,
			Importer:  imp,
			Error: func(err error) {
				var terr types.Error
				if errors.As(err, &terr) {
					pos := terr.Fset.Position(terr.Pos)
					diags = append(diags, Diagnostic{File: pos.Filename, Line: pos.Line, Column: pos.Column, Message: terr.Msg})
				}
			},
		}
		// Errors are collected by the Error callback.
		_, _ = conf.Check(unit.pkg, fset, unit.files, nil)
	}

	sortDiagnostics(diags, order)

	report := &Report{
		Analyzer:     a.Name(),
		GoVersion:    cfg.GoVersion,
		Paths:        cfg.Paths,
		Diagnostics:  diags,
		FilesChecked: len(files),
		Passed:       len(diags) == 0,
	}
	if !report.Passed {
		report.ExitCode = 1
	}
	report.Text = renderText(diags, len(files))
	return report, nil
}

// expandPaths keeps files as given and replaces directories with their
// non-test Go files in name order.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("can't read %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("can't read %s: %w", path, err)
		}
		found := false
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			add(filepath.Join(path, name))
			found = true
		}
		if !found {
			return nil, fmt.Errorf("no Go files in %s", path)
		}
	}
	return files, nil
}

func sortDiagnostics(diags []Diagnostic, order map[string]int) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if order[a.File] != order[b.File] {
			return order[a.File] < order[b.File]
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

func renderText(diags []Diagnostic, checked int) string {
	var b strings.Builder
	filesWithErrors := make(map[string]bool)
	for _, d := range diags {
		b.WriteString(d.String())
		b.WriteByte('\n')
		filesWithErrors[d.File] = true
	}

	if len(diags) == 0 {
		fmt.Fprintf(&b, "Success: no issues found in %s\n", plural(checked, "source file"))
	} else {
		fmt.Fprintf(&b, "Found %s in %s (checked %s)\n",
			plural(len(diags), "error"), plural(len(filesWithErrors), "file"), plural(checked, "source file"))
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
