package selfpath

import "path/filepath"

// Base returns the file name of p.
//
//	>>> selfpath.Base(SELF)
//	"selfpath.go"
func Base(p string) string { return filepath.Base(p) }

// DoctestGlobals exposes the path this file was loaded from.
func DoctestGlobals(pathToSelf string) map[string]any {
	return map[string]any{"SELF": pathToSelf}
}
