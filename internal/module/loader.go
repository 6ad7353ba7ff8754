// Package module loads a single Go source file into an embedded interpreter
// so that its definitions can be looked up and its doc examples executed
// without the file being part of a build.
package module

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// DefaultAccessor is the function a target defines to supply extra
// bindings for its examples.
const DefaultAccessor = "DoctestGlobals"

// Target names the source file to verify and the name it binds to once
// loaded. An empty Name keeps the file's own package clause.
type Target struct {
	Path string `json:"path" yaml:"path"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Module is a loaded target. Its top-level definitions are reachable
// through Lookup as Name.Symbol. The target is evaluated once; lookups,
// the accessor and every session share that one instance.
type Module struct {
	Name   string
	Path   string
	Source []byte
	Fset   *token.FileSet
	File   *ast.File

	accessor string
	interp   *interp.Interpreter
	stdout   *outputSwitch

	mu       sync.Mutex
	sessions int
}

// outputSwitch forwards interpreter output to the current writer
type outputSwitch struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *outputSwitch) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *outputSwitch) set(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}

// Option configures Load
type Option func(*loadOptions)

type loadOptions struct {
	accessor string
	stdout   io.Writer
}

// WithAccessor overrides the accessor function name
func WithAccessor(name string) Option {
	return func(o *loadOptions) {
		if name != "" {
			o.accessor = name
		}
	}
}

// WithStdout sets where output printed by the target's initialisers goes
func WithStdout(w io.Writer) Option {
	return func(o *loadOptions) {
		if w != nil {
			o.stdout = w
		}
	}
}

// Load reads, parses and evaluates the target. Evaluation runs the file's
// top-level initialisers and init functions.
func Load(ctx context.Context, target Target, opts ...Option) (*Module, error) {
	o := loadOptions{accessor: DefaultAccessor, stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(target.Path)
	if err != nil {
		return nil, &LoadError{Op: "resolve", Path: target.Path, Err: err}
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, &LoadError{Op: "read", Path: abs, Err: err}
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, abs, src, parser.ParseComments)
	if err != nil {
		return nil, &LoadError{Op: "parse", Path: abs, Err: err}
	}

	name, err := bindingName(target.Name, file.Name.Name)
	if err != nil {
		return nil, &LoadError{Op: "alias", Path: abs, Err: err}
	}

	rewritten, err := rebind(fset, file, name)
	if err != nil {
		return nil, &LoadError{Op: "alias", Path: abs, Err: err}
	}

	stdout := &outputSwitch{w: o.stdout}
	i, err := newInterpreter(stdout)
	if err != nil {
		return nil, &LoadError{Op: "eval", Path: abs, Err: err}
	}
	if err := evalSource(ctx, i, rewritten); err != nil {
		return nil, &LoadError{Op: "eval", Path: abs, Err: err}
	}
	// Examples reach stdlib packages by their short names.
	i.ImportUsed()

	return &Module{
		Name:     name,
		Path:     abs,
		Source:   rewritten,
		Fset:     fset,
		File:     file,
		accessor: o.accessor,
		interp:   i,
		stdout:   stdout,
	}, nil
}

// Accessor returns the name of the globals accessor function
func (m *Module) Accessor() string {
	return m.accessor
}

// Lookup evaluates Name.symbol in the module's interpreter
func (m *Module) Lookup(ctx context.Context, symbol string) (reflect.Value, error) {
	if !token.IsIdentifier(symbol) {
		return reflect.Value{}, fmt.Errorf("invalid symbol %q", symbol)
	}
	return m.interp.EvalWithContext(ctx, m.Name+"."+symbol)
}

// HasFunc reports whether the file declares a top-level function name
func (m *Module) HasFunc(name string) bool {
	for _, decl := range m.File.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Recv == nil && fn.Name.Name == name {
			return true
		}
	}
	return false
}

func bindingName(alias, clause string) (string, error) {
	name := alias
	if name == "" {
		name = clause
	}
	switch {
	case !token.IsIdentifier(name):
		return "", fmt.Errorf("%q is not a valid package name", name)
	case name == "_":
		return "", fmt.Errorf("blank package name")
	case name == "main":
		return "", fmt.Errorf("package main cannot be imported; set an alias")
	}
	return name, nil
}

// rebind renames the package clause and prints the file back to source
func rebind(fset *token.FileSet, file *ast.File, name string) ([]byte, error) {
	file.Name.Name = name
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("failed to print rebound source: %w", err)
	}
	return buf.Bytes(), nil
}

func newInterpreter(stdout io.Writer) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{
		Stdout: stdout,
		Stderr: io.Discard,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	return i, nil
}

// evalSource evaluates src and converts a panic escaping the interpreter
// into an error.
func evalSource(ctx context.Context, i *interp.Interpreter, src []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = i.EvalWithContext(ctx, string(src))
	return err
}
