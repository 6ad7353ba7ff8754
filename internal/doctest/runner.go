package doctest

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

const separator = "**********************************************************************"

var positionRx = regexp.MustCompile(`^(\S*?:)?\d+:\d+: `)

// Namespace evaluates example source and collects what it prints. Eval
// returns the results of src: none for statements and calls without a
// result, one per result otherwise.
type Namespace interface {
	Eval(ctx context.Context, src string) ([]reflect.Value, error)
	TakeOutput() string
}

// NamespaceFunc creates the fresh namespace one docstring's examples run in
type NamespaceFunc func(ctx context.Context) (Namespace, error)

// Runner executes examples and writes a report of the failures
type Runner struct {
	out     io.Writer
	options Option
	verbose bool
	checker OutputChecker
}

// NewRunner creates a runner reporting to out with default options
func NewRunner(out io.Writer, options Option, verbose bool) *Runner {
	return &Runner{out: out, options: options, verbose: verbose}
}

// Run executes every example of docs. Each docstring gets its own
// namespace from newNamespace. Failed examples are reported and counted;
// the returned error is only set when the run could not continue.
func (r *Runner) Run(ctx context.Context, docs []*Docstring, newNamespace NamespaceFunc) (*Summary, error) {
	summary := &Summary{}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return summary, &ToolingError{Op: "run", Err: err}
		}
		tally, err := r.runDocstring(ctx, d, newNamespace, summary)
		if err != nil {
			return summary, err
		}
		summary.Docstrings = append(summary.Docstrings, tally)
		summary.Attempted += tally.Tried
		summary.Failed += tally.Failed
	}
	r.writeSummary(summary)
	return summary, nil
}

func (r *Runner) runDocstring(ctx context.Context, d *Docstring, newNamespace NamespaceFunc, summary *Summary) (Tally, error) {
	tally := Tally{Name: d.Name}

	if d.Err != nil {
		r.fail(summary, &tally, Failure{Docstring: d.Name, File: d.File, Line: d.Line, Got: d.Err.Error(), Kind: KindMalformed})
		fmt.Fprintf(r.out, "%s\nFile %q, line %d, in %s\nMalformed example: %v\n", separator, d.File, d.Line, d.Name, d.Err)
		return tally, nil
	}

	ns, err := newNamespace(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return tally, &ToolingError{Op: "namespace", Err: err}
		}
		r.fail(summary, &tally, Failure{Docstring: d.Name, File: d.File, Line: d.Line, Got: err.Error(), Kind: KindSetup})
		fmt.Fprintf(r.out, "%s\nFile %q, line %d, in %s\nFailed to prepare examples:\n%s", separator, d.File, d.Line, d.Name, indent(err.Error()))
		return tally, nil
	}

	for _, ex := range d.Examples {
		if err := ctx.Err(); err != nil {
			return tally, &ToolingError{Op: "run", Err: err}
		}
		tally.Tried++
		opts := ex.Options(r.options)

		if r.verbose {
			fmt.Fprintf(r.out, "Trying:\n%s", indent(ex.Source))
			if ex.Want == "" {
				fmt.Fprintln(r.out, "Expecting nothing")
			} else {
				fmt.Fprintf(r.out, "Expecting:\n%s", indent(ex.Want))
			}
		}

		got, fault := execute(ctx, ns, ex.Source)
		if fault != "" {
			got += "panic: " + fault + "\n"
		}
		if r.checker.Check(ex.Want, got, opts) {
			if r.verbose {
				fmt.Fprintln(r.out, "ok")
			}
			continue
		}

		failure := Failure{Docstring: d.Name, File: d.File, Line: ex.Line, Source: ex.Source, Want: ex.Want, Got: got, Kind: KindMismatch}
		fmt.Fprintf(r.out, "%s\nFile %q, line %d, in %s\nFailed example:\n%s", separator, d.File, ex.Line, d.Name, indent(ex.Source))
		if fault != "" {
			failure.Kind = KindFault
			if strings.Contains(fault, "undefined: ") {
				failure.Kind = KindUnboundName
			}
			fmt.Fprintf(r.out, "Exception raised:\n%s", indent(got))
		} else {
			io.WriteString(r.out, r.checker.Difference(ex.Want, got, opts))
		}
		r.fail(summary, &tally, failure)
	}
	return tally, nil
}

func (r *Runner) fail(summary *Summary, tally *Tally, f Failure) {
	if f.Source == "" {
		tally.Tried++
	}
	tally.Failed++
	summary.Failures = append(summary.Failures, f)
}

func (r *Runner) writeSummary(s *Summary) {
	var passed, failed []Tally
	for _, t := range s.Docstrings {
		if t.Failed > 0 {
			failed = append(failed, t)
		} else {
			passed = append(passed, t)
		}
	}

	if r.verbose && len(passed) > 0 {
		fmt.Fprintf(r.out, "%d %s passed all tests:\n", len(passed), plural(len(passed), "item", "items"))
		for _, t := range passed {
			fmt.Fprintf(r.out, " %3d %s in %s\n", t.Tried, plural(t.Tried, "test", "tests"), t.Name)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(r.out, separator)
		fmt.Fprintf(r.out, "%d %s had failures:\n", len(failed), plural(len(failed), "item", "items"))
		for _, t := range failed {
			fmt.Fprintf(r.out, " %3d of %3d in %s\n", t.Failed, t.Tried, t.Name)
		}
	}
	if r.verbose {
		fmt.Fprintf(r.out, "%d %s in %d %s.\n", s.Attempted, plural(s.Attempted, "test", "tests"), len(s.Docstrings), plural(len(s.Docstrings), "item", "items"))
		fmt.Fprintf(r.out, "%d passed and %d failed.\n", s.Attempted-s.Failed, s.Failed)
	}
	if s.Failed > 0 {
		fmt.Fprintf(r.out, "***Test Failed*** %d %s.\n", s.Failed, plural(s.Failed, "failure", "failures"))
	} else if r.verbose {
		fmt.Fprintln(r.out, "Test passed.")
	}
}

// execute evaluates src and returns the printed output, including the
// displayed value of a bare expression, and the fault message if
// evaluation failed.
func execute(ctx context.Context, ns Namespace, src string) (string, string) {
	values, err := ns.Eval(ctx, src)
	out := ns.TakeOutput()
	if err != nil {
		return out, faultMessage(err)
	}
	if shown, ok := displayValue(src, values); ok {
		out += shown + "\n"
	}
	return out, ""
}

func faultMessage(err error) string {
	msg := err.Error()
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(msg), "\n") {
		lines = append(lines, positionRx.ReplaceAllString(line, ""))
	}
	return strings.Join(lines, "\n")
}

// displayValue renders the results of a bare expression. Statements, print
// calls and calls without a result display nothing. A single nil result
// displays nothing; several results are joined by spaces.
func displayValue(src string, values []reflect.Value) (string, bool) {
	expr, err := parser.ParseExpr(src)
	if err != nil || isPrintCall(expr) || len(values) == 0 {
		return "", false
	}
	if len(values) == 1 {
		return formatValue(values[0])
	}

	parts := make([]string, len(values))
	for i, v := range values {
		shown, ok := formatValue(v)
		if !ok {
			shown = "<nil>"
		}
		parts[i] = shown
	}
	return strings.Join(parts, " "), true
}

func formatValue(value reflect.Value) (string, bool) {
	if !value.IsValid() {
		return "", false
	}
	switch value.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if value.IsNil() {
			return "", false
		}
	}
	if !value.CanInterface() {
		return "", false
	}

	v := value.Interface()
	if e, ok := v.(error); ok {
		return e.Error(), true
	}
	if s, ok := v.(string); ok {
		return strconv.Quote(s), true
	}
	return fmt.Sprint(v), true
}

func isPrintCall(expr ast.Expr) bool {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return false
	}
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		return fn.Name == "print" || fn.Name == "println"
	case *ast.SelectorExpr:
		pkg, ok := fn.X.(*ast.Ident)
		if !ok || pkg.Name != "fmt" {
			return false
		}
		name := fn.Sel.Name
		return strings.HasPrefix(name, "Print") || strings.HasPrefix(name, "Fprint")
	}
	return false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// IsTooling reports whether err stopped the runner
func IsTooling(err error) bool {
	var te *ToolingError
	return errors.As(err, &te)
}
