package refactor

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	gotypes "go/types"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
	"github.com/mamaar/goextract/pkg/workingcopy"
)

// ExtractStruct moves the selected fields of a struct type into a new struct
// type held by one field of the original type, and rewrites every reference
// to the moved fields.
//
// A failed precondition is returned as a fatal status with an empty change
// and a nil error; so is cancellation. A non-nil error means an internal invariant broke and
// the transaction was aborted.
func (e *DefaultEngine) ExtractStruct(ctx context.Context, dir *analysis.Directory, desc *types.ExtractStructDescriptor, names NameQueries) (c *change.Composite, status *types.RefactoringStatus, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "refactor.ExtractStruct",
		attribute.String("package", desc.Package),
		attribute.String("type", desc.Type),
		attribute.Int("fields", len(desc.Fields)),
	)
	defer func() {
		recordOutcome(span, "extract_struct", start, status, err)
		span.End()
	}()

	m, status := e.checkStructInitialConditions(ctx, dir, desc, names)
	if m == nil || status.HasFatal() {
		return change.Empty(fmt.Sprintf("Extract struct '%s'", desc.Type), e.logger), status, nil
	}
	name := fmt.Sprintf("Extract struct '%s'", m.TypeName)
	if len(m.Moved()) == 0 {
		status.AddWarning(fmt.Sprintf("no fields of %s moved", m.ContainerName()))
		return change.Empty(name, e.logger), status, nil
	}
	span.SetAttributes(attribute.String("class_name", m.TypeName), attribute.String("holder", m.HolderName))

	c, final, err := e.checkStructFinalConditions(ctx, dir, m, name)
	if err != nil {
		if types.IsCancelled(err) {
			e.logger.Info("extract struct cancelled", "type", m.ContainerName())
			return change.Empty(name, e.logger), types.CancelledStatus(), nil
		}
		return nil, nil, err
	}
	status.Merge(final)
	if c == nil {
		return change.Empty(name, e.logger), status, nil
	}
	// Files that failed carry fatal entries; the change still holds the
	// files that were rewritten.
	countEdits(c)
	e.logger.Info("extract struct computed", "type", m.ContainerName(), "class", m.TypeName, "files", len(c.AffectedFiles()), "status", status.Severity())
	return c, status, nil
}

func (e *DefaultEngine) checkStructInitialConditions(ctx context.Context, dir *analysis.Directory, desc *types.ExtractStructDescriptor, names NameQueries) (*Model, *types.RefactoringStatus) {
	_, span := startSpan(ctx, "refactor.ExtractStruct.checkInitialConditions")
	defer span.End()

	pkg, err := dir.Package(desc.Package)
	if err != nil {
		return nil, types.FatalStatus(err.Error())
	}
	td, err := dir.LookupType(pkg, desc.Type)
	if err != nil {
		return nil, types.FatalStatus(err.Error())
	}
	m, status := BuildModel(dir, td, desc, names)
	if status.HasFatal() {
		return nil, status
	}
	status.Merge(e.validator.ValidateAll(dir, m))
	return m, status
}

// fileGroups pairs the search results of one file.
type fileGroups struct {
	refs *types.SearchResultGroup
	lits *types.SearchResultGroup
}

func (e *DefaultEngine) checkStructFinalConditions(ctx context.Context, dir *analysis.Directory, m *Model, name string) (*change.Composite, *types.RefactoringStatus, error) {
	status := types.NewStatus()
	manager, release := e.transaction()
	defer release()

	refs, lits, err := e.searchReferences(ctx, dir, m)
	if err != nil {
		return nil, nil, err
	}
	index, err := initializerIndex(dir, m, refs, lits)
	if err != nil {
		return nil, nil, err
	}
	if err := m.BindInitializers(index); err != nil {
		return nil, nil, err
	}

	pkg := m.Package()
	external := func(path string) bool {
		f := dir.File(path)
		return f != nil && (f.AST.Name.Name != pkg.Name || f.Package.ImportPath != pkg.ImportPath)
	}
	status.Merge(e.validator.ValidateConstructor(dir, m))
	status.Merge(e.validator.ValidateCrossPackage(m, append(append([]*types.SearchResultGroup{}, refs...), lits...), external))
	if status.HasFatal() {
		return nil, status, nil
	}

	// Stage the declaring file and the new type, then bind them.
	decl, err := declarationScript(dir, m)
	if err != nil {
		return nil, nil, err
	}
	declPath := m.Container.File.Path
	wc, err := manager.Open(declPath)
	if err != nil {
		status.AddFatal(err.Error(), types.Location{File: declPath})
		return nil, status, nil
	}
	if err := wc.Apply(decl); err != nil {
		status.AddFatal(fmt.Sprintf("declaring file changed since the workspace was loaded: %v", err), types.Location{File: declPath})
		return nil, status, nil
	}
	if m.TopLevel {
		if _, err := manager.Create(m.FilePath, []byte(fileSource(m))); err != nil {
			status.AddFatal(err.Error(), types.Location{File: m.FilePath})
			return nil, status, nil
		}
	}
	spec, bound, err := e.bindExtractedType(ctx, dir, manager, m)
	if err != nil {
		return nil, nil, err
	}
	status.Merge(bound)
	if status.HasFatal() {
		return nil, status, nil
	}

	asm := change.NewAssembler()
	if err := asm.Add(decl); err != nil {
		return nil, nil, err
	}
	ledgers := make(map[string]*ImportLedger)
	if m.TopLevel {
		l := NewImportLedger(declPath)
		for _, fi := range m.Moved() {
			for _, ref := range fi.imports {
				l.Remove(ref.Path)
			}
		}
		ledgers[declPath] = l
	}

	rewritten, err := e.rewriteReferences(ctx, dir, m, refs, lits, asm, ledgers)
	if err != nil {
		return nil, nil, err
	}
	status.Merge(rewritten)

	paths := make([]string, 0, len(ledgers))
	for path := range ledgers {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		f := dir.File(path)
		var stillUsed func(string) bool
		if path == declPath {
			stillUsed = importsInUse(spec, path)
		}
		edits, err := ledgers[path].Resolve(dir.Workspace().FileSet, f.AST, f.Content, stillUsed)
		if err != nil {
			status.AddFatal(err.Error(), types.Location{File: path})
			continue
		}
		script := change.NewEditScript(path)
		for _, ed := range edits {
			if err := script.Add(ed); err != nil {
				return nil, nil, err
			}
		}
		if err := asm.Add(script); err != nil {
			return nil, nil, err
		}
	}
	if m.TopLevel {
		if err := asm.AddCreate(m.FilePath, []byte(fileSource(m))); err != nil {
			return nil, nil, err
		}
	}

	c := asm.Build(name, e.structDescriptor(dir, m), e.logger)
	if e.config.VerifyResult && !status.HasFatal() {
		verified, err := e.verify(ctx, dir, manager, c)
		if err != nil {
			return nil, nil, err
		}
		status.Merge(verified)
	}
	return c, status, nil
}

// searchReferences finds the occurrences of the moved fields and the
// positional literals of the container in the committed workspace.
func (e *DefaultEngine) searchReferences(ctx context.Context, dir *analysis.Directory, m *Model) ([]*types.SearchResultGroup, []*types.SearchResultGroup, error) {
	ctx, span := startSpan(ctx, "refactor.ExtractStruct.searchReferences")
	defer span.End()

	var scope analysis.SearchScope
	for _, b := range m.Bindings() {
		scope = scope.Union(dir.ReferenceScope(b))
	}
	refs, err := dir.FindReferences(ctx, m.Bindings(), scope)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	lits, err := dir.PositionalLiterals(ctx, m.Container.Binding, dir.ReferenceScope(m.Container.Binding))
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	occurrences := 0
	for _, g := range refs {
		occurrences += len(g.Occurrences)
	}
	span.SetAttributes(attribute.Int("files", len(refs)), attribute.Int("occurrences", occurrences))
	return refs, lits, nil
}

// bindExtractedType re-parses the workspace from the working copies and
// checks that the staged declarations resolve: the new type, the holder
// field and the accessors.
func (e *DefaultEngine) bindExtractedType(ctx context.Context, dir *analysis.Directory, manager *workingcopy.Manager, m *Model) (*analysis.Directory, *types.RefactoringStatus, error) {
	ctx, span := startSpan(ctx, "refactor.ExtractStruct.bindExtractedType")
	defer span.End()

	status := types.NewStatus()
	spec, err := e.speculative(ctx, dir, manager)
	if err != nil {
		if types.IsCancelled(err) {
			return nil, nil, err
		}
		status.AddFatal(fmt.Sprintf("staged workspace does not parse: %v", err))
		return nil, status, nil
	}
	pkg, err := spec.Package(m.Package().ImportPath)
	if err != nil {
		status.AddFatal(err.Error())
		return nil, status, nil
	}
	td, err := spec.LookupType(pkg, m.TypeName)
	if err != nil {
		status.AddFatal(fmt.Sprintf("extracted type %s does not resolve: %v", m.TypeName, err))
		return nil, status, nil
	}

	container, err := spec.LookupType(pkg, m.ContainerName())
	if err != nil {
		status.AddFatal(err.Error())
		return nil, status, nil
	}
	members, err := spec.MembersOf(container.Binding)
	if err != nil {
		status.AddFatal(err.Error())
		return nil, status, nil
	}
	holder := false
	for _, b := range members {
		if b.Kind == types.FieldBinding && b.Name == m.HolderName {
			holder = true
		}
	}
	if !holder {
		status.AddFatal(fmt.Sprintf("holder field %s does not resolve in %s", m.HolderName, m.ContainerName()))
	}

	if m.Accessors {
		methods := make(map[string]bool)
		own, err := spec.MembersOf(td.Binding)
		if err != nil {
			status.AddFatal(err.Error())
			return nil, status, nil
		}
		for _, b := range own {
			if b.Kind == types.MethodBinding {
				methods[b.Name] = true
			}
		}
		for _, fi := range m.Moved() {
			if !methods[fi.Getter] || !methods[fi.Setter] {
				status.AddFatal(fmt.Sprintf("accessors of %s do not resolve on %s", fi.Name, m.TypeName))
			}
		}
	}
	e.logger.Debug("extracted type bound", "type", td.Binding.Key(), "scope", manager.Scope())
	return spec, status, nil
}

// rewriteReferences rewrites every referencing file. A file that cannot be
// rewritten gets a fatal entry and the others continue; invariant
// violations and cancellation abort.
func (e *DefaultEngine) rewriteReferences(ctx context.Context, dir *analysis.Directory, m *Model, refs, lits []*types.SearchResultGroup, asm *change.Assembler, ledgers map[string]*ImportLedger) (*types.RefactoringStatus, error) {
	ctx, span := startSpan(ctx, "refactor.ExtractStruct.rewriteReferences")
	defer span.End()

	files := make(map[string]*fileGroups)
	var paths []string
	group := func(path string) *fileGroups {
		g, ok := files[path]
		if !ok {
			g = &fileGroups{}
			files[path] = g
			paths = append(paths, path)
		}
		return g
	}
	for _, g := range refs {
		group(g.File).refs = g
	}
	for _, g := range lits {
		group(g.File).lits = g
	}
	sort.Strings(paths)

	status := types.NewStatus()
	rw := newReferenceRewriter(dir, m, e.logger)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		if err := unchangedOnDisk(dir, path); err != nil {
			status.AddFatal(err.Error(), types.Location{File: path})
			continue
		}
		ledger, ok := ledgers[path]
		if !ok {
			ledger = NewImportLedger(path)
		}
		script, fileStatus, err := rw.rewrite(files[path].refs, files[path].lits, ledger)
		if err != nil {
			if types.IsInvariantViolation(err) {
				span.RecordError(err)
				return nil, err
			}
			status.AddFatal(fmt.Sprintf("references in %s could not be rewritten: %v", path, err), types.Location{File: path})
			continue
		}
		status.Merge(fileStatus)
		if err := asm.Add(script); err != nil {
			return nil, err
		}
		if !ledger.IsEmpty() {
			ledgers[path] = ledger
		}
	}
	span.SetAttributes(attribute.Int("files", len(paths)))
	return status, nil
}

// unchangedOnDisk fails when the committed file no longer matches the
// content the workspace was loaded from.
func unchangedOnDisk(dir *analysis.Directory, path string) error {
	f := dir.File(path)
	if f == nil {
		return &types.RefactorError{Type: types.FileSystemError, Message: "file is not part of the workspace", File: path}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return &types.RefactorError{Type: types.FileSystemError, Message: fmt.Sprintf("failed to read file: %v", err), File: path, Cause: err}
	}
	if !bytes.Equal(content, f.Content) {
		return &types.RefactorError{Type: types.FileSystemError, Message: "file changed on disk since the workspace was loaded", File: path}
	}
	return nil
}

// importsInUse reports the import paths still referenced by a staged file.
func importsInUse(spec *analysis.Directory, path string) func(string) bool {
	used := make(map[string]bool)
	f := spec.File(path)
	if f == nil {
		return nil
	}
	info := spec.InfoOf(f)
	if info == nil {
		return nil
	}
	ast.Inspect(f.AST, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			if pn, ok := info.Uses[id].(*gotypes.PkgName); ok {
				used[pn.Imported().Path()] = true
			}
		}
		return true
	})
	return func(p string) bool { return used[p] }
}

// structDescriptor records the refactoring for replay.
func (e *DefaultEngine) structDescriptor(dir *analysis.Directory, m *Model) *types.PersistableDescriptor {
	d := m.Descriptor()
	var moved, renamed []string
	for _, fi := range m.Moved() {
		moved = append(moved, "'"+fi.Name+"'")
		if fi.NewName != fi.Name {
			renamed = append(renamed, fmt.Sprintf("'%s' to '%s'", fi.Name, fi.NewName))
		}
	}
	lines := []string{
		fmt.Sprintf("Original type: '%s.%s'", m.Package().ImportPath, m.ContainerName()),
		"Fields to move: " + strings.Join(moved, ", "),
	}
	if len(renamed) > 0 {
		lines = append(lines, "Renamed fields: "+strings.Join(renamed, ", "))
	}
	if m.Accessors {
		lines = append(lines, "Create getter and setter methods")
	}
	lines = append(lines, fmt.Sprintf("Holder field: '%s'", m.HolderName))
	if m.TopLevel {
		lines = append(lines, fmt.Sprintf("Create type in new file '%s'", d.FileName))
	}
	return &types.PersistableDescriptor{
		ID:          types.ExtractStructID,
		Project:     e.modulePath(dir),
		Description: fmt.Sprintf("Extract struct '%s' from '%s'", m.TypeName, m.ContainerName()),
		Comment:     strings.Join(lines, "\n"),
		Attributes:  d.Attributes(m.Package().ImportPath),
	}
}
