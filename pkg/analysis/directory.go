package analysis

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/mamaar/goextract/pkg/graph"
	"github.com/mamaar/goextract/pkg/types"
)

// Directory is the binding query façade over one parsed workspace. All
// type information comes from go/types; the directory only resolves,
// enumerates and searches. It is not safe for concurrent use.
type Directory struct {
	ws      *types.Workspace
	parser  *GoParser
	logger  *slog.Logger
	imports *graph.ImportGraph

	hierarchy *graph.TypeGraph
	units     map[string][]*checkUnit // package dir -> search units
	owners    map[*gotypes.Package]map[*gotypes.Var]string
}

// Option configures a Directory.
type Option func(*options)

type options struct {
	std  gotypes.Importer
	mode string
}

// WithImporter shares an importer for non-workspace packages between
// directories, e.g. between the committed and the speculative view.
func WithImporter(imp gotypes.Importer) Option {
	return func(o *options) { o.std = imp }
}

// WithImporterMode selects how non-workspace packages are imported
// (ImporterDefault or ImporterSource).
func WithImporterMode(mode string) Option {
	return func(o *options) { o.mode = mode }
}

// NewDirectory parses the module at root, reading every file through src.
func NewDirectory(ctx context.Context, root string, src Source, logger *slog.Logger, opts ...Option) (*Directory, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := NewParser(logger, src, o.std, o.mode)
	ws, err := p.ParseWorkspace(ctx, root)
	if err != nil {
		return nil, err
	}
	return &Directory{
		ws:      ws,
		parser:  p,
		logger:  logger,
		imports: graph.NewImportGraph(ws),
		units:   make(map[string][]*checkUnit),
		owners:  make(map[*gotypes.Package]map[*gotypes.Var]string),
	}, nil
}

// Workspace returns the parsed workspace.
func (d *Directory) Workspace() *types.Workspace { return d.ws }

// Imports returns the workspace import graph.
func (d *Directory) Imports() *graph.ImportGraph { return d.imports }

// StdImporter returns the importer used for packages outside the workspace.
func (d *Directory) StdImporter() gotypes.Importer { return d.parser.stdImporter() }

// Package resolves a user package reference (import path, directory or
// unique package name).
func (d *Directory) Package(ref string) (*types.Package, error) {
	dir, ok := types.ResolvePackagePath(d.ws, ref)
	if !ok {
		return nil, &types.RefactorError{
			Type:    types.SymbolNotFound,
			Message: fmt.Sprintf("package %q not found in workspace", ref),
		}
	}
	return d.ws.Packages[dir], nil
}

// TypeCheck type-checks the package if needed and returns its results.
func (d *Directory) TypeCheck(pkg *types.Package) (*gotypes.Package, *gotypes.Info) {
	d.parser.TypeCheckPackage(d.ws, pkg)
	return pkg.TypesPkg, pkg.TypesInfo
}

// File returns the parsed file at path, test files included.
func (d *Directory) File(path string) *types.File {
	for _, pkg := range d.ws.Packages {
		if f := pkg.FileByPath(path); f != nil {
			return f
		}
		for _, f := range pkg.TestFiles {
			if f.Path == path {
				return f
			}
		}
	}
	return nil
}

// Position converts a token position of this workspace.
func (d *Directory) Position(pos token.Pos) token.Position {
	return d.ws.FileSet.Position(pos)
}

// TypeDecl is the declaration of a named type.
type TypeDecl struct {
	Binding   types.Binding
	Object    *gotypes.TypeName
	Package   *types.Package
	File      *types.File
	GenDecl   *ast.GenDecl
	Spec      *ast.TypeSpec
	Struct    *ast.StructType    // set for struct types
	Interface *ast.InterfaceType // set for interface types
}

// Named returns the go/types named type of the declaration.
func (t *TypeDecl) Named() *gotypes.Named {
	named, _ := t.Object.Type().(*gotypes.Named)
	return named
}

// LookupType finds the package-level type declaration name in pkg.
func (d *Directory) LookupType(pkg *types.Package, name string) (*TypeDecl, error) {
	tpkg, _ := d.TypeCheck(pkg)
	notFound := &types.RefactorError{
		Type:    types.SymbolNotFound,
		Message: fmt.Sprintf("type %s not found in package %s", name, pkg.ImportPath),
	}
	if tpkg == nil {
		return nil, notFound
	}
	tn, ok := tpkg.Scope().Lookup(name).(*gotypes.TypeName)
	if !ok || tn.IsAlias() {
		return nil, notFound
	}

	for _, file := range pkg.SortedFiles() {
		for _, decl := range file.AST.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts := spec.(*ast.TypeSpec)
				if ts.Name.Pos() != tn.Pos() {
					continue
				}
				td := &TypeDecl{
					Binding: d.BindingOf(tn),
					Object:  tn,
					Package: pkg,
					File:    file,
					GenDecl: gen,
					Spec:    ts,
				}
				td.Struct, _ = ts.Type.(*ast.StructType)
				td.Interface, _ = ts.Type.(*ast.InterfaceType)
				return td, nil
			}
		}
	}
	return nil, notFound
}

// Resolve returns the binding of the identifier at the byte offset of file.
func (d *Directory) Resolve(path string, offset int) (types.Binding, bool) {
	file := d.File(path)
	if file == nil {
		return types.Binding{}, false
	}
	unit := d.unitOf(file)
	if unit == nil {
		return types.Binding{}, false
	}
	tf := d.ws.FileSet.File(file.AST.Pos())
	if tf == nil || offset < 0 || offset > tf.Size() {
		return types.Binding{}, false
	}
	pos := tf.Pos(offset)
	nodes, _ := astutil.PathEnclosingInterval(file.AST, pos, pos)
	if len(nodes) == 0 {
		return types.Binding{}, false
	}
	ident, ok := nodes[0].(*ast.Ident)
	if !ok {
		return types.Binding{}, false
	}
	obj := unit.info.Defs[ident]
	if obj == nil {
		obj = unit.info.Uses[ident]
	}
	if obj == nil {
		return types.Binding{}, false
	}
	return d.BindingOf(obj), true
}

// ObjectOf returns the go/types object of a binding declared in the workspace.
func (d *Directory) ObjectOf(b types.Binding) (gotypes.Object, bool) {
	pkg := d.ws.PackageByImportPath(b.Package)
	if pkg == nil {
		return nil, false
	}
	tpkg, _ := d.TypeCheck(pkg)
	if tpkg == nil {
		return nil, false
	}

	switch b.Kind {
	case types.FieldBinding, types.MethodBinding:
		owner, ok := tpkg.Scope().Lookup(b.Owner).(*gotypes.TypeName)
		if !ok {
			return nil, false
		}
		if b.Kind == types.FieldBinding {
			st, ok := owner.Type().Underlying().(*gotypes.Struct)
			if !ok {
				return nil, false
			}
			for i := 0; i < st.NumFields(); i++ {
				if st.Field(i).Name() == b.Name {
					return st.Field(i), true
				}
			}
			return nil, false
		}
		return lookupMethod(owner.Type(), b.Name)
	default:
		obj := tpkg.Scope().Lookup(b.Name)
		return obj, obj != nil
	}
}

func lookupMethod(t gotypes.Type, name string) (gotypes.Object, bool) {
	if iface, ok := t.Underlying().(*gotypes.Interface); ok {
		for i := 0; i < iface.NumMethods(); i++ {
			if iface.Method(i).Name() == name {
				return iface.Method(i), true
			}
		}
		return nil, false
	}
	if named, ok := t.(*gotypes.Named); ok {
		for i := 0; i < named.NumMethods(); i++ {
			if named.Method(i).Name() == name {
				return named.Method(i), true
			}
		}
	}
	return nil, false
}

// BindingOf converts a go/types object into its binding value.
func (d *Directory) BindingOf(obj gotypes.Object) types.Binding {
	obj = canonicalObject(obj)
	b := types.Binding{Name: obj.Name()}
	if obj.Pkg() != nil {
		b.Package = obj.Pkg().Path()
	}
	// Objects imported from outside the workspace carry positions of a
	// different file set.
	if d.ws.PackageByImportPath(strings.TrimSuffix(b.Package, "_test")) != nil && obj.Pos().IsValid() {
		pos := d.ws.FileSet.Position(obj.Pos())
		b.File = pos.Filename
		b.Offset = pos.Offset
	}

	switch o := obj.(type) {
	case *gotypes.TypeName:
		b.Kind = types.TypeBinding
	case *gotypes.Var:
		if o.IsField() {
			b.Kind = types.FieldBinding
			b.Owner = d.fieldOwner(o)
			return b
		}
		b.Kind = types.VarBinding
	case *gotypes.Func:
		if recv := o.Type().(*gotypes.Signature).Recv(); recv != nil {
			b.Kind = types.MethodBinding
			b.Owner = typeName(recv.Type())
			return b
		}
		b.Kind = types.FuncBinding
	case *gotypes.Const:
		b.Kind = types.ConstBinding
	default:
		b.Kind = types.VarBinding
		b.Owner = "~"
		return b
	}
	if !isPackageLevel(obj) {
		// Local declarations are identified by position.
		b.Owner = fmt.Sprintf("%s:%d", filepath.Base(b.File), b.Offset)
	}
	return b
}

func (d *Directory) fieldOwner(v *gotypes.Var) string {
	if v.Pkg() == nil {
		return "struct{}"
	}
	owners, ok := d.owners[v.Pkg()]
	if !ok {
		owners = make(map[*gotypes.Var]string)
		scope := v.Pkg().Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*gotypes.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			if st, ok := tn.Type().Underlying().(*gotypes.Struct); ok {
				for i := 0; i < st.NumFields(); i++ {
					owners[st.Field(i)] = name
				}
			}
		}
		d.owners[v.Pkg()] = owners
	}
	if owner, ok := owners[v]; ok {
		return owner
	}
	return "struct{}"
}

func typeName(t gotypes.Type) string {
	if ptr, ok := t.(*gotypes.Pointer); ok {
		t = ptr.Elem()
	}
	if named, ok := gotypes.Unalias(t).(*gotypes.Named); ok {
		return named.Origin().Obj().Name()
	}
	return t.String()
}

// MembersOf returns the fields and methods declared directly on a named type,
// fields in declaration order followed by methods sorted by name.
func (d *Directory) MembersOf(typ types.Binding) ([]types.Binding, error) {
	obj, ok := d.ObjectOf(typ)
	tn, isType := obj.(*gotypes.TypeName)
	if !ok || !isType {
		return nil, &types.RefactorError{
			Type:    types.SymbolNotFound,
			Message: fmt.Sprintf("type %s not found", typ.Key()),
		}
	}

	var members []types.Binding
	if st, ok := tn.Type().Underlying().(*gotypes.Struct); ok {
		for i := 0; i < st.NumFields(); i++ {
			members = append(members, d.BindingOf(st.Field(i)))
		}
	}

	var methods []types.Binding
	if iface, ok := tn.Type().Underlying().(*gotypes.Interface); ok {
		for i := 0; i < iface.NumExplicitMethods(); i++ {
			methods = append(methods, d.BindingOf(iface.ExplicitMethod(i)))
		}
	} else if named, ok := tn.Type().(*gotypes.Named); ok {
		for i := 0; i < named.NumMethods(); i++ {
			methods = append(methods, d.BindingOf(named.Method(i)))
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	return append(members, methods...), nil
}

// Hierarchy returns the type graph of the workspace, building it on first use.
func (d *Directory) Hierarchy(ctx context.Context) (*graph.TypeGraph, error) {
	if d.hierarchy != nil {
		return d.hierarchy, nil
	}

	type entry struct {
		key   string
		named *gotypes.Named
	}
	g := graph.NewTypeGraph()
	var entries []entry
	for _, pkg := range d.ws.SortedPackages() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		tpkg, _ := d.TypeCheck(pkg)
		if tpkg == nil {
			continue
		}
		scope := tpkg.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*gotypes.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			named, ok := tn.Type().(*gotypes.Named)
			if !ok {
				continue
			}
			node := g.AddType(d.BindingOf(tn), gotypes.IsInterface(named))
			entries = append(entries, entry{key: node.Key(), named: named})
		}
	}

	for _, e := range entries {
		switch under := e.named.Underlying().(type) {
		case *gotypes.Struct:
			for i := 0; i < under.NumFields(); i++ {
				f := under.Field(i)
				if !f.Embedded() {
					continue
				}
				if n := namedOf(f.Type()); n != nil {
					g.AddEdge(e.key, d.BindingOf(n).Key(), graph.EmbedsEdge)
				}
			}
		case *gotypes.Interface:
			for i := 0; i < under.NumEmbeddeds(); i++ {
				if n := namedOf(under.EmbeddedType(i)); n != nil {
					g.AddEdge(e.key, d.BindingOf(n).Key(), graph.EmbedsEdge)
				}
			}
		}
	}

	for _, iface := range entries {
		it, ok := iface.named.Underlying().(*gotypes.Interface)
		if !ok || it.NumMethods() == 0 || iface.named.TypeParams().Len() > 0 {
			continue
		}
		for _, e := range entries {
			if gotypes.IsInterface(e.named) || e.named.TypeParams().Len() > 0 {
				continue
			}
			if gotypes.Implements(e.named, it) || gotypes.Implements(gotypes.NewPointer(e.named), it) {
				g.AddEdge(e.key, iface.key, graph.ImplementsEdge)
			}
		}
	}

	d.hierarchy = g
	return g, nil
}

// namedOf returns the type name object behind t, dereferencing pointers.
func namedOf(t gotypes.Type) *gotypes.TypeName {
	if ptr, ok := t.(*gotypes.Pointer); ok {
		t = ptr.Elem()
	}
	if named, ok := gotypes.Unalias(t).(*gotypes.Named); ok {
		return named.Origin().Obj()
	}
	return nil
}

// SupertypesOf returns the direct supertypes of a named type: embedded types
// and the workspace interfaces it implements.
func (d *Directory) SupertypesOf(ctx context.Context, typ types.Binding) ([]types.Binding, error) {
	g, err := d.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Binding
	for _, e := range g.Supertypes(typ.Key()) {
		out = append(out, e.Super.Binding)
	}
	return out, nil
}

// SubtypesOf returns the direct subtypes of a named type: types embedding it
// and, for interfaces, the workspace types implementing it.
func (d *Directory) SubtypesOf(ctx context.Context, typ types.Binding) ([]types.Binding, error) {
	g, err := d.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Binding
	for _, e := range g.Subtypes(typ.Key()) {
		out = append(out, e.Sub.Binding)
	}
	return out, nil
}

// SearchScope is the set of packages a reference search visits.
type SearchScope struct {
	Packages []*types.Package
}

// Union merges two scopes.
func (s SearchScope) Union(other SearchScope) SearchScope {
	seen := make(map[string]bool)
	var out []*types.Package
	for _, p := range append(append([]*types.Package{}, s.Packages...), other.Packages...) {
		if !seen[p.Dir] {
			seen[p.Dir] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportPath < out[j].ImportPath })
	return SearchScope{Packages: out}
}

// WorkspaceScope covers every package of the workspace.
func (d *Directory) WorkspaceScope() SearchScope {
	return SearchScope{Packages: d.ws.SortedPackages()}
}

// ReferenceScope returns the packages that can reference b: the declaring
// package, plus its transitive importers when the name is exported.
func (d *Directory) ReferenceScope(b types.Binding) SearchScope {
	pkg := d.ws.PackageByImportPath(strings.TrimSuffix(b.Package, "_test"))
	if pkg == nil {
		return SearchScope{}
	}
	pkgs := []*types.Package{pkg}
	if token.IsExported(b.Name) {
		for _, n := range d.imports.GetTransitiveImporters(pkg.ImportPath) {
			if n.Package != nil {
				pkgs = append(pkgs, n.Package)
			}
		}
	}
	return SearchScope{}.Union(SearchScope{Packages: pkgs})
}

// FindReferences returns every occurrence of the bindings inside scope,
// grouped per file and ordered by file path then offset. Candidate files are
// pre-filtered by name before their identifiers are resolved; a match
// requires binding equality, so unrelated members with the same name are
// never reported. Cancellation is checked before each file.
func (d *Directory) FindReferences(ctx context.Context, bindings []types.Binding, scope SearchScope) ([]*types.SearchResultGroup, error) {
	wanted := make(map[string]types.Binding, len(bindings))
	names := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		wanted[b.Key()] = b
		names[b.Name] = true
	}

	return d.searchFiles(ctx, scope, func(file *types.File) bool {
		return containsAny(file.Content, names)
	}, func(ix *fileIndex) []types.Occurrence {
		return ix.occurrences(d, wanted, names)
	})
}

// PositionalLiterals returns the composite literals of typ that list their
// elements without keys. Such literals mention no field identifier and are
// invisible to FindReferences.
func (d *Directory) PositionalLiterals(ctx context.Context, typ types.Binding, scope SearchScope) ([]*types.SearchResultGroup, error) {
	return d.searchFiles(ctx, scope, nil, func(ix *fileIndex) []types.Occurrence {
		return ix.positionalLiterals(d, typ)
	})
}

func (d *Directory) searchFiles(ctx context.Context, scope SearchScope, filter func(*types.File) bool, scan func(*fileIndex) []types.Occurrence) ([]*types.SearchResultGroup, error) {
	var groups []*types.SearchResultGroup
	for _, pkg := range scope.Packages {
		for _, unit := range d.searchUnits(pkg) {
			for _, file := range unit.files {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
				}
				if filter != nil && !filter(file) {
					continue
				}
				occs := scan(newFileIndex(unit, file))
				if len(occs) == 0 {
					continue
				}
				sort.SliceStable(occs, func(i, j int) bool { return occs[i].Offset < occs[j].Offset })
				groups = append(groups, &types.SearchResultGroup{
					File:        file.Path,
					Package:     pkg.ImportPath,
					Occurrences: occs,
				})
			}
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].File < groups[j].File })
	return groups, nil
}

// searchUnits returns the type-checked units that together cover every file
// of the package, test files included, each file exactly once.
func (d *Directory) searchUnits(pkg *types.Package) []*checkUnit {
	if units, ok := d.units[pkg.Dir]; ok {
		return units
	}
	d.TypeCheck(pkg)
	base := &checkUnit{pkg: pkg, files: pkg.SortedFiles(), info: pkg.TypesInfo, tpkg: pkg.TypesPkg, errors: pkg.TypeErrors}

	var units []*checkUnit
	inPkg, xtest := d.parser.checkTests(d.ws, pkg)
	if inPkg != nil {
		units = append(units, inPkg)
	} else {
		units = append(units, base)
	}
	if xtest != nil {
		units = append(units, xtest)
	}
	d.units[pkg.Dir] = units
	return units
}

// unitOf returns the search unit that contains file.
func (d *Directory) unitOf(file *types.File) *checkUnit {
	if file.Package == nil {
		return nil
	}
	for _, unit := range d.searchUnits(file.Package) {
		for _, f := range unit.files {
			if f == file {
				return unit
			}
		}
	}
	return nil
}

// InfoOf returns the type information covering file, test files included.
func (d *Directory) InfoOf(file *types.File) *gotypes.Info {
	if unit := d.unitOf(file); unit != nil {
		return unit.info
	}
	return nil
}

// TypeErrors returns the type errors of every unit of the package.
func (d *Directory) TypeErrors(pkg *types.Package) []gotypes.Error {
	var errs []gotypes.Error
	for _, unit := range d.searchUnits(pkg) {
		errs = append(errs, unit.errors...)
	}
	return errs
}

// Declares returns the package-level object named name in pkg, looking at
// declarations visible to in-package tests as well.
func (d *Directory) Declares(pkg *types.Package, name string) (types.Binding, bool) {
	for _, unit := range d.searchUnits(pkg) {
		if unit.tpkg == nil || unit.tpkg.Path() != pkg.ImportPath {
			continue
		}
		if obj := unit.tpkg.Scope().Lookup(name); obj != nil {
			return d.BindingOf(obj), true
		}
	}
	return types.Binding{}, false
}
