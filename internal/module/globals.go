package module

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// GlobalsProvider produces the supplementary bindings a module's examples
// may reference, given the resolved path of the module's own source file.
type GlobalsProvider interface {
	DoctestGlobals(ctx context.Context, pathToSelf string) (map[string]any, error)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// DoctestGlobals calls the module's accessor. The accessor must have the
// shape func(string) map[string]T, optionally returning a trailing error.
// A module without an accessor returns ErrNoAccessor.
func (m *Module) DoctestGlobals(ctx context.Context, pathToSelf string) (globals map[string]any, err error) {
	if !m.HasFunc(m.accessor) {
		return nil, ErrNoAccessor
	}

	fn, err := m.Lookup(ctx, m.accessor)
	if err != nil {
		return nil, &ContextError{Accessor: m.accessor, Err: err}
	}
	if err := checkAccessorType(fn.Type()); err != nil {
		return nil, &ContextError{Accessor: m.accessor, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			globals = nil
			err = &ContextError{Accessor: m.accessor, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out := fn.Call([]reflect.Value{reflect.ValueOf(pathToSelf)})
	if len(out) == 2 && !out[1].IsNil() {
		callErr, _ := out[1].Interface().(error)
		return nil, &ContextError{Accessor: m.accessor, Err: callErr}
	}

	globals = make(map[string]any, out[0].Len())
	iter := out[0].MapRange()
	for iter.Next() {
		globals[iter.Key().String()] = iter.Value().Interface()
	}
	return globals, nil
}

func checkAccessorType(t reflect.Type) error {
	if t.Kind() != reflect.Func {
		return fmt.Errorf("accessor is a %s, not a function", t.Kind())
	}
	if t.NumIn() != 1 || t.In(0).Kind() != reflect.String {
		return errors.New("accessor must take a single string parameter")
	}
	switch t.NumOut() {
	case 1:
	case 2:
		if !t.Out(1).Implements(errorType) {
			return errors.New("accessor's second result must be an error")
		}
	default:
		return errors.New("accessor must return a map and optionally an error")
	}
	if out := t.Out(0); out.Kind() != reflect.Map || out.Key().Kind() != reflect.String {
		return errors.New("accessor must return a map keyed by string")
	}
	return nil
}
