// Package doctest finds interactive examples in Go doc comments, runs them
// against a loaded module and reports every example whose output differs
// from what its comment declares.
//
// An example is a prompt line followed by its expected output:
//
//	>>> strings.ToUpper("go")
//	"GO"
//
// Continuation lines start with "... ". Output ends at a blank line or the
// next prompt.
package doctest

import (
	"fmt"
	"sort"
	"strings"
)

// Option is a set of output comparison and reporting flags
type Option int

const (
	// Ellipsis lets "..." in expected output match any text.
	Ellipsis Option = 1 << iota
	// NormalizeWhitespace treats every run of whitespace as equal.
	NormalizeWhitespace
	// DontAcceptBlankline disables the <BLANKLINE> marker.
	DontAcceptBlankline
	// ReportUDiff reports mismatches as a unified diff.
	ReportUDiff
	// TrimSpace compares outputs with surrounding space removed, as go test
	// does for example functions.
	TrimSpace
	// UnorderedLines compares outputs as sorted line sets.
	UnorderedLines
)

var optionNames = map[string]Option{
	"ELLIPSIS":              Ellipsis,
	"NORMALIZE_WHITESPACE":  NormalizeWhitespace,
	"DONT_ACCEPT_BLANKLINE": DontAcceptBlankline,
	"REPORT_UDIFF":          ReportUDiff,
}

// ParseOptions converts option names such as "ELLIPSIS" into a flag set
func ParseOptions(names []string) (Option, error) {
	var opts Option
	for _, name := range names {
		flag, ok := optionNames[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown doctest option %q", name)
		}
		opts |= flag
	}
	return opts, nil
}

// String lists the set flags by name
func (o Option) String() string {
	var names []string
	for name, flag := range optionNames {
		if o&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Example is one prompt with its expected output
type Example struct {
	Source string
	Want   string
	Line   int

	// Directive overrides: true sets a flag, false clears it.
	Overrides map[Option]bool
	// Fixed flags that apply regardless of the runner's defaults.
	Fixed Option
}

// Options applies the example's overrides to base
func (e *Example) Options(base Option) Option {
	opts := base | e.Fixed
	for flag, on := range e.Overrides {
		if on {
			opts |= flag
		} else {
			opts &^= flag
		}
	}
	return opts
}

// Docstring is the doc comment of one named item and the examples it holds
type Docstring struct {
	Name     string
	File     string
	Line     int
	Examples []*Example

	// Err is set when the comment could not be parsed into examples.
	Err error
}
