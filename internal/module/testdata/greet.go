// Package greet is a small target for loader tests.
package greet

import "fmt"

// Loaded counts init runs.
var Loaded = 0

func init() { Loaded++ }

// Hello returns a greeting.
func Hello(name string) string {
	return fmt.Sprintf("hello, %s", name)
}

// Shout prints a greeting and returns nothing.
func Shout(name string) {
	fmt.Println("HELLO,", name)
}

// Split returns the halves of a "key=value" pair.
func Split(pair string) (string, string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:]
		}
	}
	return pair, ""
}

// Seen is handed to examples by DoctestGlobals.
var Seen = map[string]int{}

// DoctestGlobals supplies the names examples may use.
func DoctestGlobals(pathToSelf string) map[string]any {
	return map[string]any{
		"PATH_TO_SELF": pathToSelf,
		"ANSWER":       42,
		"WORDS":        []string{"a", "b"},
		"SEEN":         Seen,
	}
}
