package doctest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type fakeResult struct {
	value   any
	printed string
	err     error
}

type fakeNamespace struct {
	results map[string]fakeResult
	out     strings.Builder
}

func (f *fakeNamespace) Eval(_ context.Context, src string) ([]reflect.Value, error) {
	r, ok := f.results[src]
	if !ok {
		return nil, fmt.Errorf("1:1: undefined: %s", src)
	}
	f.out.WriteString(r.printed)
	if r.err != nil {
		return nil, r.err
	}
	if r.value == nil {
		return nil, nil
	}
	return []reflect.Value{reflect.ValueOf(r.value)}, nil
}

func (f *fakeNamespace) TakeOutput() string {
	s := f.out.String()
	f.out.Reset()
	return s
}

func fakeNamespaces(results map[string]fakeResult) NamespaceFunc {
	return func(context.Context) (Namespace, error) {
		return &fakeNamespace{results: results}, nil
	}
}

func docstring(name string, line int, examples ...*Example) *Docstring {
	return &Docstring{Name: name, File: "/src/calc.go", Line: line, Examples: examples}
}

func TestRunnerAllPassQuiet(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(&out, 0, false)
	docs := []*Docstring{
		docstring("calc.Add", 3,
			&Example{Source: "2 + 2", Want: "4\n", Line: 5},
			&Example{Source: `fmt.Println("hi")`, Want: "hi\n", Line: 7},
			&Example{Source: "x := 1", Line: 9},
		),
	}
	results := map[string]fakeResult{
		"2 + 2":             {value: 4},
		`fmt.Println("hi")`: {value: 3, printed: "hi\n"},
		"x := 1":            {},
	}

	summary, err := runner.Run(context.Background(), docs, fakeNamespaces(results))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !summary.Passed() || summary.Attempted != 3 {
		t.Errorf("Run() summary = %+v, expected 3 passing examples", summary)
	}
	if out.Len() != 0 {
		t.Errorf("Run() wrote %q, expected nothing", out.String())
	}
}

func TestRunnerMismatchReport(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(&out, 0, false)
	docs := []*Docstring{
		docstring("calc.Add", 3, &Example{Source: "2 + 2", Want: "5\n", Line: 5}),
		docstring("calc.Sub", 10, &Example{Source: "2 - 2", Want: "0\n", Line: 12}),
	}
	results := map[string]fakeResult{"2 + 2": {value: 4}, "2 - 2": {value: 0}}

	summary, err := runner.Run(context.Background(), docs, fakeNamespaces(results))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	expected := `**********************************************************************
File "/src/calc.go", line 5, in calc.Add
Failed example:
    2 + 2
Expected:
    5
Got:
    4
**********************************************************************
1 item had failures:
   1 of   1 in calc.Add
***Test Failed*** 1 failure.
`
	if out.String() != expected {
		t.Errorf("Run() output =\n%s\nexpected\n%s", out.String(), expected)
	}
	if summary.Attempted != 2 || summary.Failed != 1 {
		t.Errorf("summary = %d attempted, %d failed", summary.Attempted, summary.Failed)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Kind != KindMismatch {
		t.Errorf("failures = %+v", summary.Failures)
	}
}

func TestRunnerFaults(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(&out, 0, false)
	docs := []*Docstring{
		docstring("calc.Use", 1,
			&Example{Source: "MISSING + 1", Want: "2\n", Line: 2},
			&Example{Source: "calc.Boom()", Line: 4},
			&Example{Source: "calc.Expected()", Want: "before\npanic: boom\n", Line: 6},
		),
	}
	results := map[string]fakeResult{
		"calc.Boom()":     {printed: "before\n", err: errors.New("calc.go:12:3: boom")},
		"calc.Expected()": {printed: "before\n", err: errors.New("boom")},
	}

	summary, err := runner.Run(context.Background(), docs, fakeNamespaces(results))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Attempted != 3 || summary.Failed != 2 {
		t.Fatalf("summary = %d attempted, %d failed", summary.Attempted, summary.Failed)
	}
	if summary.Failures[0].Kind != KindUnboundName {
		t.Errorf("first failure kind = %s, expected %s", summary.Failures[0].Kind, KindUnboundName)
	}
	if summary.Failures[1].Kind != KindFault {
		t.Errorf("second failure kind = %s, expected %s", summary.Failures[1].Kind, KindFault)
	}

	report := out.String()
	for _, want := range []string{
		"Exception raised:\n    panic: undefined: MISSING + 1\n",
		"Exception raised:\n    before\n    panic: boom\n",
		"   2 of   3 in calc.Use\n",
		"***Test Failed*** 2 failures.\n",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRunnerVerbose(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(&out, 0, true)
	docs := []*Docstring{docstring("calc", 1, &Example{Source: "1 + 1", Want: "2\n", Line: 3})}

	_, err := runner.Run(context.Background(), docs, fakeNamespaces(map[string]fakeResult{"1 + 1": {value: 2}}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	expected := `Trying:
    1 + 1
Expecting:
    2
ok
1 item passed all tests:
   1 test in calc
1 test in 1 item.
1 passed and 0 failed.
Test passed.
`
	if out.String() != expected {
		t.Errorf("Run() output =\n%s\nexpected\n%s", out.String(), expected)
	}
}

func TestRunnerMalformedAndSetup(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(&out, 0, false)
	docs := []*Docstring{
		{Name: "calc.Bad", File: "/src/calc.go", Line: 4, Err: errors.New("line 6: >>> must be followed by a space")},
		docstring("calc.Add", 9, &Example{Source: "1", Want: "1\n", Line: 10}),
	}
	newNamespace := func(context.Context) (Namespace, error) {
		return nil, errors.New(`invalid global "1x"`)
	}

	summary, err := runner.Run(context.Background(), docs, newNamespace)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Failed != 2 || summary.Attempted != 2 {
		t.Fatalf("summary = %d attempted, %d failed", summary.Attempted, summary.Failed)
	}
	if summary.Failures[0].Kind != KindMalformed || summary.Failures[1].Kind != KindSetup {
		t.Errorf("failure kinds = %s, %s", summary.Failures[0].Kind, summary.Failures[1].Kind)
	}
	if !strings.Contains(out.String(), "Malformed example: line 6: >>> must be followed by a space\n") {
		t.Errorf("report missing malformed docstring:\n%s", out.String())
	}
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(&bytes.Buffer{}, 0, false)
	docs := []*Docstring{docstring("calc", 1, &Example{Source: "1", Want: "1\n"})}
	_, err := runner.Run(ctx, docs, fakeNamespaces(nil))
	if !IsTooling(err) {
		t.Errorf("Run() error = %v, expected a tooling error", err)
	}
}

func TestToolingErrorUnwrap(t *testing.T) {
	err := &ToolingError{Op: "run", Err: context.Canceled}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(%v, context.Canceled) = false", err)
	}
	if got := err.Error(); got != "doctest runner: run: context canceled" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDisplayValue(t *testing.T) {
	var nilSlice []int
	var nilErr error
	values := func(vs ...any) []reflect.Value {
		out := make([]reflect.Value, len(vs))
		for i, v := range vs {
			out[i] = reflect.ValueOf(v)
		}
		return out
	}
	tests := []struct {
		src    string
		values []reflect.Value
		want   string
		shown  bool
	}{
		{"2 + 2", values(4), "4", true},
		{`"go"`, values("go"), `"go"`, true},
		{"err", values(errors.New("bad input")), "bad input", true},
		{"xs", values([]int{1, 2}), "[1 2]", true},
		{"xs", values(nilSlice), "", false},
		{"f()", []reflect.Value{{}}, "", false},
		{"calc.Reset()", nil, "", false},
		{"calc.Pair()", values(1, 2), "1 2", true},
		{"calc.Div(6, 3)", []reflect.Value{reflect.ValueOf(2), reflect.ValueOf(&nilErr).Elem()}, "2 <nil>", true},
		{`calc.Split("a=b")`, values("a", "b"), `"a" "b"`, true},
		{"x := 1", values(1), "", false},
		{`fmt.Println("x")`, values(2, nilErr), "", false},
		{`fmt.Fprintln(w, "x")`, values(2), "", false},
		{`println("x")`, values(2), "", false},
	}

	for _, tt := range tests {
		got, shown := displayValue(tt.src, tt.values)
		if got != tt.want || shown != tt.shown {
			t.Errorf("displayValue(%q) = %q, %v, expected %q, %v", tt.src, got, shown, tt.want, tt.shown)
		}
	}
}

func TestRunnerVoidAndMultiResultCalls(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(&out, 0, false)
	docs := []*Docstring{
		docstring("calc.Reset", 1,
			&Example{Source: "calc.Reset()", Line: 2},
			&Example{Source: "calc.Say()", Want: "hi\n", Line: 3},
			&Example{Source: "calc.Pair()", Want: "1 2\n", Line: 5},
		),
	}
	ns := &pairNamespace{}

	summary, err := runner.Run(context.Background(), docs, func(context.Context) (Namespace, error) { return ns, nil })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !summary.Passed() || summary.Attempted != 3 {
		t.Errorf("Run() summary = %+v, report:\n%s", summary, out.String())
	}
}

// pairNamespace answers calls without results, printing calls and a
// two-result call.
type pairNamespace struct {
	out strings.Builder
}

func (p *pairNamespace) Eval(_ context.Context, src string) ([]reflect.Value, error) {
	switch src {
	case "calc.Say()":
		p.out.WriteString("hi\n")
	case "calc.Pair()":
		return []reflect.Value{reflect.ValueOf(1), reflect.ValueOf(2)}, nil
	}
	return nil, nil
}

func (p *pairNamespace) TakeOutput() string {
	s := p.out.String()
	p.out.Reset()
	return s
}

func TestFaultMessage(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"1:28: undefined: foo", "undefined: foo"},
		{"_.go:3:1: undefined: bar", "undefined: bar"},
		{"runtime error: index out of range [3] with length 2", "runtime error: index out of range [3] with length 2"},
	}

	for _, tt := range tests {
		if got := faultMessage(errors.New(tt.err)); got != tt.want {
			t.Errorf("faultMessage(%q) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}
