package module

import (
	"errors"
	"fmt"
)

// ErrNoAccessor is returned when the target file does not define the
// globals accessor function.
var ErrNoAccessor = errors.New("module defines no globals accessor")

// LoadError reports a target that could not be turned into a module.
// Op is one of "resolve", "read", "parse", "alias" or "eval".
type LoadError struct {
	Op   string
	Path string
	Err  error
}

// Error implements error interface
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Op, e.Err)
}

// Unwrap implements error unwrapping
func (e *LoadError) Unwrap() error {
	return e.Err
}

// ContextError reports an accessor that misbehaved or a mapping that cannot
// be bound into an example namespace.
type ContextError struct {
	Accessor string
	Key      string
	Err      error
}

// Error implements error interface
func (e *ContextError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("globals from %s: key %q: %v", e.Accessor, e.Key, e.Err)
	}
	return fmt.Sprintf("globals from %s: %v", e.Accessor, e.Err)
}

// Unwrap implements error unwrapping
func (e *ContextError) Unwrap() error {
	return e.Err
}
