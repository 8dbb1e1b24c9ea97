package analysis

import (
	"bytes"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"sort"

	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/goextract/pkg/types"
)

// checkUnit is one type-checked set of files: a package, a package together
// with its in-package tests, or an external test package.
type checkUnit struct {
	pkg    *types.Package
	files  []*types.File
	info   *gotypes.Info
	tpkg   *gotypes.Package
	errors []gotypes.Error
}

// fileIndex is the identifier index of one file, built from a single
// inspector pass.
type fileIndex struct {
	file    *types.File
	unit    *checkUnit
	inspect *inspector.Inspector
}

func newFileIndex(unit *checkUnit, file *types.File) *fileIndex {
	return &fileIndex{
		file:    file,
		unit:    unit,
		inspect: inspector.New([]*ast.File{file.AST}),
	}
}

// occurrences returns every identifier of the file that denotes one of the
// wanted bindings, classified by syntactic role, in source order.
func (ix *fileIndex) occurrences(d *Directory, wanted map[string]types.Binding, names map[string]bool) []types.Occurrence {
	var out []types.Occurrence
	info := ix.unit.info
	for cur := range ix.inspect.Root().Preorder((*ast.Ident)(nil)) {
		ident := cur.Node().(*ast.Ident)
		if !names[ident.Name] {
			continue
		}

		if obj := info.Defs[ident]; obj != nil {
			if b, ok := wanted[d.BindingOf(obj).Key()]; ok {
				out = append(out, d.occurrence(b, ix.file, ident, types.DeclarationSite, false))
				continue
			}
		}
		// Embedded fields are both a definition (the field) and a use (the type).
		if obj := info.Uses[ident]; obj != nil {
			if b, ok := wanted[d.BindingOf(obj).Key()]; ok {
				kind, compound := classify(cur)
				out = append(out, d.occurrence(b, ix.file, ident, kind, compound))
			}
		}
	}
	return out
}

// positionalLiterals returns the composite literals of the named type that
// list their elements without keys.
func (ix *fileIndex) positionalLiterals(d *Directory, typ types.Binding) []types.Occurrence {
	var out []types.Occurrence
	for cur := range ix.inspect.Root().Preorder((*ast.CompositeLit)(nil)) {
		lit := cur.Node().(*ast.CompositeLit)
		if len(lit.Elts) == 0 {
			continue
		}
		if _, keyed := lit.Elts[0].(*ast.KeyValueExpr); keyed {
			continue
		}
		tv, ok := ix.unit.info.Types[lit]
		if !ok || tv.Type == nil {
			continue
		}
		t := tv.Type
		if ptr, ok := t.(*gotypes.Pointer); ok {
			t = ptr.Elem()
		}
		named, ok := gotypes.Unalias(t).(*gotypes.Named)
		if !ok || d.BindingOf(named.Origin().Obj()).Key() != typ.Key() {
			continue
		}
		start := d.ws.FileSet.Position(lit.Lbrace)
		end := d.ws.FileSet.Position(lit.Rbrace)
		out = append(out, types.Occurrence{
			Binding: typ,
			File:    ix.file.Path,
			Offset:  start.Offset,
			Length:  end.Offset - start.Offset + 1,
			Line:    start.Line,
			Column:  start.Column,
			Kind:    types.InitializerAccess,
		})
	}
	return out
}

// classify determines the syntactic role of an identifier use. A selector
// whose Sel is the identifier is classified as a whole.
func classify(cur inspector.Cursor) (types.OccurrenceKind, bool) {
	ident := cur.Node().(*ast.Ident)
	var expr ast.Node = ident
	parent := cur.Parent()
	if sel, ok := parent.Node().(*ast.SelectorExpr); ok && sel.Sel == ident {
		expr = sel
		cur = parent
		parent = cur.Parent()
	}
	for {
		paren, ok := parent.Node().(*ast.ParenExpr)
		if !ok {
			break
		}
		expr = paren
		cur = parent
		parent = cur.Parent()
	}

	switch p := parent.Node().(type) {
	case *ast.KeyValueExpr:
		if p.Key == expr {
			if _, ok := parent.Parent().Node().(*ast.CompositeLit); ok {
				return types.InitializerAccess, false
			}
		}
	case *ast.AssignStmt:
		for _, lhs := range p.Lhs {
			if lhs == expr {
				return types.WriteAccess, p.Tok != token.ASSIGN && p.Tok != token.DEFINE
			}
		}
	case *ast.IncDecStmt:
		return types.WriteAccess, true
	case *ast.RangeStmt:
		if p.Key == expr || p.Value == expr {
			return types.WriteAccess, false
		}
	}
	return types.ReadAccess, false
}

func (d *Directory) occurrence(b types.Binding, file *types.File, ident *ast.Ident, kind types.OccurrenceKind, compound bool) types.Occurrence {
	pos := d.ws.FileSet.Position(ident.Pos())
	return types.Occurrence{
		Binding:  b,
		File:     file.Path,
		Offset:   pos.Offset,
		Length:   len(ident.Name),
		Line:     pos.Line,
		Column:   pos.Column,
		Kind:     kind,
		Compound: compound,
	}
}

// containsAny is the fast textual pre-filter applied before a file is
// indexed.
func containsAny(content []byte, names map[string]bool) bool {
	for name := range names {
		if bytes.Contains(content, []byte(name)) {
			return true
		}
	}
	return false
}

// canonicalObject returns the canonical (origin) form of a types.Object,
// handling generic type instantiations.
func canonicalObject(obj gotypes.Object) gotypes.Object {
	switch o := obj.(type) {
	case *gotypes.Func:
		if orig := o.Origin(); orig != o {
			return orig
		}
	case *gotypes.Var:
		if o.IsField() {
			if orig := o.Origin(); orig != o {
				return orig
			}
		}
	}
	return obj
}

// isPackageLevel reports whether obj is a package-level symbol.
func isPackageLevel(obj gotypes.Object) bool {
	return obj.Pkg() != nil && obj.Parent() == obj.Pkg().Scope()
}

func sortedFiles(m map[string]*types.File) []*types.File {
	files := make([]*types.File, 0, len(m))
	for _, f := range m {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}
