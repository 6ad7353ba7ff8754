package module

import (
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strings"
)

// localize rewrites src so that names private to the session resolve to
// their prefixed variables. Top-level names src declares become private
// first. Source that does not parse is returned unchanged and left to the
// interpreter to report.
func (s *Session) localize(src string) string {
	fset := token.NewFileSet()
	nodes, declared, ok := parseInput(fset, src)
	if !ok || len(nodes) == 0 {
		return src
	}
	for _, name := range declared {
		if _, ok := s.names[name]; !ok && name != "_" {
			s.names[name] = s.prefix + name
		}
	}
	if renameIdents(nodes, s.names) == 0 {
		return src
	}

	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n")
		}
		if err := format.Node(&b, fset, n); err != nil {
			return src
		}
	}
	return b.String()
}

// parseInput parses src as top-level declarations or, failing that, as
// statements, and returns the parsed nodes with the names they declare at
// the top level.
func parseInput(fset *token.FileSet, src string) ([]ast.Node, []string, bool) {
	var nodes []ast.Node
	var names []string

	if f, err := parser.ParseFile(fset, "", "package p\n"+src, 0); err == nil {
		for _, d := range f.Decls {
			nodes = append(nodes, d)
			names = append(names, declaredNames(d)...)
		}
		return nodes, names, true
	}

	f, err := parser.ParseFile(fset, "", "package p\nfunc _() {\n"+src+"\n}", 0)
	if err != nil {
		return nil, nil, false
	}
	for _, stmt := range f.Decls[0].(*ast.FuncDecl).Body.List {
		nodes = append(nodes, stmt)
		switch st := stmt.(type) {
		case *ast.AssignStmt:
			if st.Tok != token.DEFINE {
				continue
			}
			for _, lhs := range st.Lhs {
				if id, ok := lhs.(*ast.Ident); ok {
					names = append(names, id.Name)
				}
			}
		case *ast.DeclStmt:
			names = append(names, declaredNames(st.Decl)...)
		}
	}
	return nodes, names, true
}

func declaredNames(decl ast.Decl) []string {
	var names []string
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil {
			names = append(names, d.Name.Name)
		}
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch sp := spec.(type) {
			case *ast.ValueSpec:
				for _, id := range sp.Names {
					names = append(names, id.Name)
				}
			case *ast.TypeSpec:
				names = append(names, sp.Name.Name)
			}
		}
	}
	return names
}

// renameIdents replaces every identifier in names that refers to a
// variable, constant, type or function. Selected fields and methods,
// struct field and interface method names, keys of struct literals, method
// names and import names keep their spelling. It returns the number of
// identifiers renamed.
func renameIdents(nodes []ast.Node, names map[string]string) int {
	keep := make(map[*ast.Ident]bool)
	for _, n := range nodes {
		ast.Inspect(n, func(n ast.Node) bool {
			switch x := n.(type) {
			case *ast.SelectorExpr:
				keep[x.Sel] = true
			case *ast.CompositeLit:
				if _, isMap := x.Type.(*ast.MapType); isMap {
					return true
				}
				for _, elt := range x.Elts {
					if kv, ok := elt.(*ast.KeyValueExpr); ok {
						if id, ok := kv.Key.(*ast.Ident); ok {
							keep[id] = true
						}
					}
				}
			case *ast.StructType:
				keepFieldNames(x.Fields, keep)
			case *ast.InterfaceType:
				keepFieldNames(x.Methods, keep)
			case *ast.FuncDecl:
				if x.Recv != nil {
					keep[x.Name] = true
				}
			case *ast.ImportSpec:
				if x.Name != nil {
					keep[x.Name] = true
				}
			}
			return true
		})
	}

	renamed := 0
	for _, n := range nodes {
		ast.Inspect(n, func(n ast.Node) bool {
			id, ok := n.(*ast.Ident)
			if !ok || keep[id] {
				return true
			}
			if local, ok := names[id.Name]; ok {
				id.Name = local
				renamed++
			}
			return true
		})
	}
	return renamed
}

func keepFieldNames(fields *ast.FieldList, keep map[*ast.Ident]bool) {
	if fields == nil {
		return
	}
	for _, f := range fields.List {
		for _, id := range f.Names {
			keep[id] = true
		}
	}
}
