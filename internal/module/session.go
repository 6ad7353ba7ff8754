package module

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
)

// globalsPkg is the synthetic package through which non-literal globals
// reach the evaluation scope. Each session imports its own copy.
const globalsPkg = "doctestglobals"

// Session is one docstring's namespace over the module's interpreter.
// The module's package state is shared by all sessions. Injected globals
// and the names examples declare are private to the session: they live
// under a session prefix and example source is rewritten to use it.
type Session struct {
	module *Module
	id     int
	prefix string
	names  map[string]string
	out    *bytes.Buffer
}

// NewSession opens a namespace on the loaded module and binds globals as
// variables visible to the session only. The module is not evaluated
// again. Output printed from then on is captured by the new session.
func (m *Module) NewSession(ctx context.Context, globals map[string]any) (*Session, error) {
	if err := ValidateGlobals(m.accessor, globals); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions++
	id := m.sessions
	m.mu.Unlock()

	s := &Session{
		module: m,
		id:     id,
		prefix: fmt.Sprintf("doctest%d_", id),
		names:  make(map[string]string),
		out:    &bytes.Buffer{},
	}
	m.stdout.set(s.out)
	if err := s.bind(ctx, globals); err != nil {
		return nil, err
	}
	return s, nil
}

// Eval evaluates src in the session and returns its results. A call to a
// function without a result returns none and a call returning several
// values returns all of them. A panic raised by interpreted code is
// returned as an error.
func (s *Session) Eval(ctx context.Context, src string) ([]reflect.Value, error) {
	src = s.localize(src)

	n, isCall := s.resultCount(ctx, src)
	if isCall && n > 1 {
		v, err := s.eval(ctx, collectResults(src, n))
		if err != nil {
			return nil, err
		}
		if v.Kind() != reflect.Slice {
			return []reflect.Value{v}, nil
		}
		results := make([]reflect.Value, v.Len())
		for i := range results {
			results[i] = v.Index(i)
		}
		return results, nil
	}

	v, err := s.eval(ctx, src)
	if err != nil {
		return nil, err
	}
	if isCall && n == 0 {
		return nil, nil
	}
	return []reflect.Value{v}, nil
}

// TakeOutput returns what interpreted code printed since the last call
func (s *Session) TakeOutput() string {
	text := s.out.String()
	s.out.Reset()
	return text
}

func (s *Session) eval(ctx context.Context, src string) (res reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = reflect.Value{}
			err = fmt.Errorf("%v", r)
		}
		if err != nil {
			err = errors.New(strings.ReplaceAll(err.Error(), s.prefix, ""))
		}
	}()
	return s.module.interp.EvalWithContext(ctx, src)
}

// resultCount reports how many results the call src makes. It only
// resolves callees named by identifiers and selectors, so nothing is
// evaluated twice; builtins, conversions and other expressions report
// false.
func (s *Session) resultCount(ctx context.Context, src string) (int, bool) {
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return 0, false
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok || !isName(call.Fun) {
		return 0, false
	}
	fn, err := s.eval(ctx, types.ExprString(call.Fun))
	if err != nil || !fn.IsValid() || fn.Kind() != reflect.Func {
		return 0, false
	}
	return fn.Type().NumOut(), true
}

func isName(expr ast.Expr) bool {
	switch e := expr.(type) {
	case *ast.Ident:
		return true
	case *ast.SelectorExpr:
		return isName(e.X)
	case *ast.ParenExpr:
		return isName(e.X)
	}
	return false
}

// collectResults wraps a call with n results so that it evaluates to a
// slice holding all of them.
func collectResults(call string, n int) string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("r%d", i)
	}
	list := strings.Join(names, ", ")
	return fmt.Sprintf("func() []interface{} { %s := %s; return []interface{}{%s} }()", list, call, list)
}

func (s *Session) bind(ctx context.Context, globals map[string]any) error {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	pkg := fmt.Sprintf("%s%d", globalsPkg, s.id)
	exported := make(map[string]reflect.Value)
	var decls []string
	for _, name := range names {
		local := s.prefix + name
		s.names[name] = local
		if decl, ok := literalDecl(local, globals[name]); ok {
			decls = append(decls, decl)
			continue
		}
		value := globals[name]
		rv := reflect.New(reflect.TypeOf(value)).Elem()
		rv.Set(reflect.ValueOf(value))
		exported[name] = rv
		decls = append(decls, fmt.Sprintf("var %s = %s.%s", local, pkg, name))
	}

	if len(exported) > 0 {
		if err := s.module.interp.Use(interp.Exports{pkg + "/" + pkg: exported}); err != nil {
			return &ContextError{Accessor: s.module.accessor, Err: err}
		}
		if _, err := s.module.interp.EvalWithContext(ctx, fmt.Sprintf("import %q", pkg)); err != nil {
			return &ContextError{Accessor: s.module.accessor, Err: err}
		}
	}

	for i, decl := range decls {
		if _, err := s.module.interp.EvalWithContext(ctx, decl); err != nil {
			return &ContextError{Accessor: s.module.accessor, Key: names[i], Err: err}
		}
	}
	return nil
}

// ValidateGlobals checks that every key of globals can be declared as a
// Go variable. Keys are checked in sorted order so the reported key is
// stable.
func ValidateGlobals(accessor string, globals map[string]any) error {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch {
		case !token.IsIdentifier(name):
			return &ContextError{Accessor: accessor, Key: name, Err: fmt.Errorf("not a valid identifier")}
		case name == "_":
			return &ContextError{Accessor: accessor, Key: name, Err: fmt.Errorf("blank identifier")}
		}
	}
	return nil
}

// literalDecl renders a declaration for values expressible as Go literals
// of a predeclared type.
func literalDecl(name string, value any) (string, bool) {
	if value == nil {
		return fmt.Sprintf("var %s interface{}", name), true
	}
	rv := reflect.ValueOf(value)
	if rv.Type().PkgPath() != "" {
		return "", false
	}
	typ := rv.Type().String()
	switch rv.Kind() {
	case reflect.String:
		return fmt.Sprintf("var %s %s = %s", name, typ, strconv.Quote(rv.String())), true
	case reflect.Bool:
		return fmt.Sprintf("var %s %s = %t", name, typ, rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("var %s %s = %d", name, typ, rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fmt.Sprintf("var %s %s = %d", name, typ, rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		return fmt.Sprintf("var %s %s = %s", name, typ, strconv.FormatFloat(f, 'g', -1, 64)), true
	}
	return "", false
}
