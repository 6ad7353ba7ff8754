package doctest

import "fmt"

// ToolingError means the example runner itself could not proceed, as
// opposed to an example failing.
type ToolingError struct {
	Op  string
	Err error
}

// Error implements error interface
func (e *ToolingError) Error() string {
	return fmt.Sprintf("doctest runner: %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping
func (e *ToolingError) Unwrap() error {
	return e.Err
}
