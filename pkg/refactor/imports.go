package refactor

import (
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"path"
	"sort"
	"strconv"

	"github.com/mamaar/goextract/pkg/change"
)

// importRef is one package referenced by generated code.
type importRef struct {
	Path string
	Name string // local name; "." for dot imports
}

// spec renders the import spec, naming the import only when the local name
// differs from the package name.
func (r importRef) spec(pkgName string) string {
	if r.Name == "" || r.Name == pkgName {
		return strconv.Quote(r.Path)
	}
	return r.Name + " " + strconv.Quote(r.Path)
}

// collectImports returns the packages referenced by a type expression.
func collectImports(info *gotypes.Info, expr ast.Expr, self *gotypes.Package) []importRef {
	if info == nil || expr == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []importRef
	add := func(ref importRef) {
		if !seen[ref.Path] {
			seen[ref.Path] = true
			out = append(out, ref)
		}
	}
	qualified := make(map[*ast.Ident]bool)
	ast.Inspect(expr, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			qualified[n.Sel] = true
			if x, ok := n.X.(*ast.Ident); ok {
				if pn, ok := info.Uses[x].(*gotypes.PkgName); ok {
					add(importRef{Path: pn.Imported().Path(), Name: x.Name})
				}
			}
		case *ast.Ident:
			if qualified[n] {
				return false
			}
			// A type from another package without a qualifier comes from a
			// dot import.
			if tn, ok := info.Uses[n].(*gotypes.TypeName); ok && tn.Pkg() != nil && self != nil && tn.Pkg() != self && tn.Pkg().Path() != self.Path() {
				add(importRef{Path: tn.Pkg().Path(), Name: "."})
			}
		}
		return true
	})
	return out
}

// ImportLedger collects the import changes of one file during its rewrite
// pass. Resolve turns them into edits once, at the end of the pass, so
// several edits referencing the same package produce one import.
type ImportLedger struct {
	file    string
	added   map[string]importRef
	removed map[string]bool
}

// NewImportLedger creates an empty ledger for file.
func NewImportLedger(file string) *ImportLedger {
	return &ImportLedger{
		file:    file,
		added:   make(map[string]importRef),
		removed: make(map[string]bool),
	}
}

// Add registers a package referenced by new code.
func (l *ImportLedger) Add(path, name string) {
	delete(l.removed, path)
	l.added[path] = importRef{Path: path, Name: name}
}

// Remove registers a package whose last reference may have been removed.
func (l *ImportLedger) Remove(path string) {
	if _, ok := l.added[path]; ok {
		return
	}
	l.removed[path] = true
}

// IsEmpty reports whether nothing was registered.
func (l *ImportLedger) IsEmpty() bool {
	return len(l.added) == 0 && len(l.removed) == 0
}

// Resolve returns the import edits for the original file. stillUsed reports
// whether a removal candidate is still referenced by the speculative content
// of the file; candidates still in use are kept.
func (l *ImportLedger) Resolve(fset *token.FileSet, file *ast.File, src []byte, stillUsed func(path string) bool) ([]change.Edit, error) {
	if l.IsEmpty() {
		return nil, nil
	}
	offset := func(p token.Pos) int { return fset.Position(p).Offset }

	existing := make(map[string]*ast.ImportSpec)
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: bad import path %s: %w", l.file, spec.Path.Value, err)
		}
		existing[p] = spec
	}

	var adds []importRef
	for p, ref := range l.added {
		if _, ok := existing[p]; !ok {
			adds = append(adds, ref)
		}
	}
	sort.Slice(adds, func(i, j int) bool { return adds[i].Path < adds[j].Path })

	var removals []*ast.ImportSpec
	for p := range l.removed {
		spec, ok := existing[p]
		if !ok || (stillUsed != nil && stillUsed(p)) {
			continue
		}
		if spec.Name != nil && (spec.Name.Name == "_" || spec.Name.Name == ".") {
			continue
		}
		removals = append(removals, spec)
	}
	sort.Slice(removals, func(i, j int) bool { return removals[i].Pos() < removals[j].Pos() })

	var edits []change.Edit
	var lastDecl *ast.GenDecl
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		lastDecl = gen

		var gone []*ast.ImportSpec
		for _, spec := range gen.Specs {
			for _, r := range removals {
				if spec == r {
					gone = append(gone, r)
				}
			}
		}
		if len(gone) == 0 {
			continue
		}
		// The whole declaration goes when it loses every spec, unless new
		// imports are about to be inserted into it.
		if !gen.Lparen.IsValid() || (len(gone) == len(gen.Specs) && len(adds) == 0) {
			start, end := offset(gen.Pos()), offset(gen.End())
			edits = append(edits, change.Edit{Start: start, End: end, Category: change.RemoveImport})
			continue
		}
		for _, spec := range gone {
			start, end := offset(spec.Pos()), offset(spec.End())
			if spec.Doc != nil {
				start = offset(spec.Doc.Pos())
			}
			if spec.Comment != nil {
				end = offset(spec.Comment.End())
			}
			start, end, _ = lineSpan(src, start, end)
			edits = append(edits, change.Edit{Start: start, End: end, Category: change.RemoveImport})
		}
	}

	if len(adds) > 0 {
		edits = append(edits, l.insertion(file, lastDecl, src, adds, offset))
	}
	return edits, nil
}

func (l *ImportLedger) insertion(file *ast.File, last *ast.GenDecl, src []byte, adds []importRef, offset func(token.Pos) int) change.Edit {
	specs := make([]string, len(adds))
	for i, ref := range adds {
		specs[i] = ref.spec(path.Base(ref.Path))
	}
	switch {
	case last != nil && last.Lparen.IsValid():
		at := offset(last.Rparen)
		text := ""
		if at > 0 && at <= len(src) && src[at-1] != '\n' {
			text = "\n"
		}
		for _, s := range specs {
			text += "\t" + s + "\n"
		}
		return change.Edit{Start: at, End: at, NewText: text, Category: change.AddImport}
	case last != nil:
		text := ""
		for _, s := range specs {
			text += "\nimport " + s
		}
		return change.Edit{Start: offset(last.End()), End: offset(last.End()), NewText: text, Category: change.AddImport}
	default:
		text := "\n"
		for _, s := range specs {
			text += "\nimport " + s
		}
		return change.Edit{Start: offset(file.Name.End()), End: offset(file.Name.End()), NewText: text, Category: change.AddImport}
	}
}

// importBlock renders the import declaration of a new file.
func importBlock(refs []importRef) string {
	if len(refs) == 0 {
		return ""
	}
	sorted := append([]importRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	out := "import (\n"
	for _, ref := range sorted {
		out += "\t" + ref.spec(path.Base(ref.Path)) + "\n"
	}
	return out + ")\n\n"
}

// mergeImports deduplicates import references by path.
func mergeImports(groups ...[]importRef) []importRef {
	seen := make(map[string]bool)
	var out []importRef
	for _, g := range groups {
		for _, ref := range g {
			if !seen[ref.Path] {
				seen[ref.Path] = true
				out = append(out, ref)
			}
		}
	}
	return out
}
