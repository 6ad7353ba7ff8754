package doctest

import (
	"go/ast"
	"go/doc"
	"go/token"
	"strings"
)

// Finder collects the docstrings of a parsed source file
type Finder struct {
	// GoExamples also collects testable Example functions that declare
	// their output.
	GoExamples bool
}

// Find returns the docstrings of file that contain examples, in source
// order. name is the binding the file's definitions are reached through.
func (f *Finder) Find(fset *token.FileSet, file *ast.File, name string) []*Docstring {
	var docs []*Docstring
	add := func(label string, group *ast.CommentGroup) {
		if d := newDocstring(fset, label, group); d != nil {
			docs = append(docs, d)
		}
	}

	add(name, file.Doc)
	for _, decl := range file.Decls {
		switch decl := decl.(type) {
		case *ast.FuncDecl:
			add(name+"."+funcName(decl), decl.Doc)
		case *ast.GenDecl:
			if decl.Tok == token.IMPORT {
				continue
			}
			for _, spec := range decl.Specs {
				group := specDoc(spec)
				if group == nil && len(decl.Specs) == 1 {
					group = decl.Doc
				}
				if label := specName(spec); label != "" {
					add(name+"."+label, group)
				}
			}
		}
	}

	if f.GoExamples {
		docs = append(docs, goExamples(fset, file, name)...)
	}
	return docs
}

func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	return receiverName(fn.Recv.List[0].Type) + "." + fn.Name.Name
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return "?"
}

func specDoc(spec ast.Spec) *ast.CommentGroup {
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return s.Doc
	case *ast.ValueSpec:
		return s.Doc
	}
	return nil
}

func specName(spec ast.Spec) string {
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return s.Name.Name
	case *ast.ValueSpec:
		if len(s.Names) > 0 {
			return s.Names[0].Name
		}
	}
	return ""
}

func newDocstring(fset *token.FileSet, label string, group *ast.CommentGroup) *Docstring {
	if group == nil {
		return nil
	}
	lines := commentLines(fset, group)
	pos := fset.Position(group.Pos())
	d := &Docstring{Name: label, File: pos.Filename, Line: pos.Line}

	examples, err := ParseExamples(lines)
	switch {
	case err != nil:
		d.Err = err
	case len(examples) == 0:
		return nil
	default:
		d.Examples = examples
	}
	return d
}

// commentLines strips comment markers while keeping each line's position
// and its indentation relative to the marker.
func commentLines(fset *token.FileSet, group *ast.CommentGroup) []CommentLine {
	var lines []CommentLine
	for _, c := range group.List {
		line := fset.Position(c.Slash).Line
		if text, ok := strings.CutPrefix(c.Text, "//"); ok {
			lines = append(lines, CommentLine{Text: strings.TrimPrefix(text, " "), Line: line})
			continue
		}
		body := strings.TrimSuffix(strings.TrimPrefix(c.Text, "/*"), "*/")
		for i, text := range strings.Split(body, "\n") {
			lines = append(lines, CommentLine{Text: strings.TrimRight(text, " \t"), Line: line + i})
		}
	}
	return lines
}

// goExamples turns Example functions with an output comment into one
// example each.
func goExamples(fset *token.FileSet, file *ast.File, name string) []*Docstring {
	var docs []*Docstring
	for _, ex := range doc.Examples(file) {
		if ex.Output == "" && !ex.EmptyOutput {
			continue
		}
		fn := "Example" + ex.Name
		pos := fset.Position(exampleFuncPos(file, fn))
		fixed := TrimSpace
		if ex.Unordered {
			fixed |= UnorderedLines
		}
		docs = append(docs, &Docstring{
			Name: name + "." + fn,
			File: pos.Filename,
			Line: pos.Line,
			Examples: []*Example{{
				Source: name + "." + fn + "()",
				Want:   ex.Output,
				Line:   pos.Line,
				Fixed:  fixed,
			}},
		})
	}
	return docs
}

func exampleFuncPos(file *ast.File, fn string) token.Pos {
	for _, decl := range file.Decls {
		if d, ok := decl.(*ast.FuncDecl); ok && d.Recv == nil && d.Name.Name == fn {
			return d.Pos()
		}
	}
	return file.Pos()
}
