package doctest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	blanklineMarker = "<BLANKLINE>"
	ellipsisMarker  = "..."
)

// OutputChecker decides whether an example's actual output matches what it
// declares and describes the difference when it does not.
type OutputChecker struct{}

// Check reports whether got matches want under opts
func (OutputChecker) Check(want, got string, opts Option) bool {
	if got == want {
		return true
	}

	if opts&TrimSpace != 0 {
		want, got = strings.TrimSpace(want), strings.TrimSpace(got)
	}
	if opts&UnorderedLines != 0 {
		want, got = sortLines(want), sortLines(got)
	}

	if opts&DontAcceptBlankline == 0 {
		want = replaceBlanklines(want)
		got = blankWhitespaceLines(got)
	}
	if got == want {
		return true
	}

	if opts&NormalizeWhitespace != 0 {
		want = strings.Join(strings.Fields(want), " ")
		got = strings.Join(strings.Fields(got), " ")
		if got == want {
			return true
		}
	}

	if opts&Ellipsis != 0 {
		return ellipsisMatch(want, got)
	}
	return false
}

// Difference renders the mismatch between want and got for a report
func (OutputChecker) Difference(want, got string, opts Option) string {
	if opts&ReportUDiff != 0 && strings.Count(want, "\n") > 1 && strings.Count(got, "\n") > 1 {
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(want),
			B:        difflib.SplitLines(got),
			FromFile: "expected",
			ToFile:   "got",
			Context:  2,
		})
		if err == nil {
			return "Differences (unified diff with -expected +got):\n" + indent(diff)
		}
	}

	var b strings.Builder
	if want == "" {
		b.WriteString("Expected nothing\n")
	} else {
		fmt.Fprintf(&b, "Expected:\n%s", indent(want))
	}
	if got == "" {
		b.WriteString("Got nothing\n")
	} else {
		fmt.Fprintf(&b, "Got:\n%s", indent(got))
	}
	return b.String()
}

func replaceBlanklines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == blanklineMarker {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

func blankWhitespaceLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

func sortLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// ellipsisMatch matches got against want where each "..." in want stands
// for any run of text.
func ellipsisMatch(want, got string) bool {
	if !strings.Contains(want, ellipsisMarker) {
		return want == got
	}

	pieces := strings.Split(want, ellipsisMarker)
	first, last := pieces[0], pieces[len(pieces)-1]
	if !strings.HasPrefix(got, first) {
		return false
	}
	start, end := len(first), len(got)
	if !strings.HasSuffix(got[start:], last) {
		return false
	}
	end -= len(last)

	for _, piece := range pieces[1 : len(pieces)-1] {
		if piece == "" {
			continue
		}
		idx := strings.Index(got[start:end], piece)
		if idx < 0 {
			return false
		}
		start += idx + len(piece)
	}
	return true
}

// indent prefixes every line of s with four spaces
func indent(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(line)
	}
	if !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
