package doctest

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	prompt       = ">>>"
	continuation = "..."
)

var directiveRx = regexp.MustCompile(`//\s*doctest:\s*(.*)$`)

// CommentLine is one line of doc comment text with its line in the file
type CommentLine struct {
	Text string
	Line int
}

// ParseExamples extracts the examples in a doc comment
func ParseExamples(lines []CommentLine) ([]*Example, error) {
	var examples []*Example
	n := len(lines)

	for i := 0; i < n; {
		text := lines[i].Text
		trimmed := strings.TrimLeft(text, " \t")
		if !strings.HasPrefix(trimmed, prompt) {
			i++
			continue
		}

		indent := text[:len(text)-len(trimmed)]
		start := lines[i].Line
		first, err := stripMarker(trimmed, prompt, start)
		if err != nil {
			return nil, err
		}
		source := []string{first}
		i++

		for i < n {
			rest, ok := strings.CutPrefix(lines[i].Text, indent)
			if !ok || !isContinuation(rest) {
				break
			}
			line, err := stripMarker(rest, continuation, lines[i].Line)
			if err != nil {
				return nil, err
			}
			source = append(source, line)
			i++
		}

		var want []string
		for i < n {
			text := lines[i].Text
			if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimLeft(text, " \t"), prompt) {
				break
			}
			rest, ok := strings.CutPrefix(text, indent)
			if !ok {
				return nil, fmt.Errorf("line %d: expected output has inconsistent leading whitespace", lines[i].Line)
			}
			want = append(want, rest)
			i++
		}

		ex := &Example{
			Source: strings.Join(source, "\n"),
			Line:   start,
		}
		if strings.TrimSpace(ex.Source) == "" {
			return nil, fmt.Errorf("line %d: empty example", start)
		}
		if len(want) > 0 {
			ex.Want = strings.Join(want, "\n") + "\n"
		}
		overrides, err := parseDirectives(source)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", start, err)
		}
		ex.Overrides = overrides
		examples = append(examples, ex)
	}
	return examples, nil
}

func isContinuation(s string) bool {
	return s == continuation || strings.HasPrefix(s, continuation+" ")
}

// stripMarker removes a prompt or continuation marker and the single space
// that must follow it.
func stripMarker(s, marker string, line int) (string, error) {
	rest := strings.TrimPrefix(s, marker)
	if rest == "" {
		return "", nil
	}
	if rest[0] != ' ' {
		return "", fmt.Errorf("line %d: %s must be followed by a space", line, marker)
	}
	return rest[1:], nil
}

// parseDirectives reads "// doctest: +ELLIPSIS -REPORT_UDIFF" comments
func parseDirectives(source []string) (map[Option]bool, error) {
	var overrides map[Option]bool
	for _, line := range source {
		m := directiveRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, field := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			if len(field) < 2 || (field[0] != '+' && field[0] != '-') {
				return nil, fmt.Errorf("bad doctest directive %q", field)
			}
			flag, err := ParseOptions([]string{field[1:]})
			if err != nil {
				return nil, err
			}
			if overrides == nil {
				overrides = make(map[Option]bool)
			}
			overrides[flag] = field[0] == '+'
		}
	}
	return overrides, nil
}
