package refactor

import (
	"context"
	"fmt"
	"go/ast"
	gotypes "go/types"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
	"github.com/mamaar/goextract/pkg/workingcopy"
)

// interfaceMethod is one method of the extracted interface.
type interfaceMethod struct {
	name      string
	signature string // parameters and results as written
	doc       string
	imports   []importRef
}

// interfacePlan is the validated extract-interface request.
type interfacePlan struct {
	desc     *types.ExtractInterfaceDescriptor
	td       *analysis.TypeDecl
	methods  []interfaceMethod
	filePath string // new file, empty for in-file placement
}

// ExtractInterface declares an interface made of selected methods of a type
// and asserts that the type, and the requested candidate types of the same
// package, implement it.
func (e *DefaultEngine) ExtractInterface(ctx context.Context, dir *analysis.Directory, desc *types.ExtractInterfaceDescriptor) (c *change.Composite, status *types.RefactoringStatus, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "refactor.ExtractInterface",
		attribute.String("package", desc.Package),
		attribute.String("type", desc.Type),
		attribute.String("interface", desc.InterfaceName),
	)
	defer func() {
		recordOutcome(span, "extract_interface", start, status, err)
		span.End()
	}()

	name := fmt.Sprintf("Extract interface '%s'", desc.InterfaceName)
	plan, status := e.checkInterfaceInitialConditions(dir, desc)
	if plan == nil || status.HasFatal() {
		return change.Empty(name, e.logger), status, nil
	}

	manager, release := e.transaction()
	defer release()

	c, final, err := e.buildInterface(ctx, dir, manager, plan, name)
	if err != nil {
		if types.IsCancelled(err) {
			return change.Empty(name, e.logger), types.CancelledStatus(), nil
		}
		return nil, nil, err
	}
	status.Merge(final)
	if c == nil {
		return change.Empty(name, e.logger), status, nil
	}
	countEdits(c)
	return c, status, nil
}

func (e *DefaultEngine) checkInterfaceInitialConditions(dir *analysis.Directory, desc *types.ExtractInterfaceDescriptor) (*interfacePlan, *types.RefactoringStatus) {
	pkg, err := dir.Package(desc.Package)
	if err != nil {
		return nil, types.FatalStatus(err.Error())
	}
	td, err := dir.LookupType(pkg, desc.Type)
	if err != nil {
		return nil, types.FatalStatus(err.Error())
	}
	loc := locationOf(dir, td.File, td.Spec.Name.Pos())
	switch {
	case td.Interface != nil:
		return nil, types.FatalStatus(fmt.Sprintf("type %s is already an interface", desc.Type), loc)
	case td.Spec.TypeParams != nil:
		return nil, types.FatalStatus(fmt.Sprintf("type %s is generic; extracting interfaces of generic types is not supported", desc.Type), loc)
	}

	status := e.validator.ValidateName(desc.InterfaceName, "interface name")
	if status.HasFatal() {
		return nil, status
	}
	if b, ok := dir.Declares(pkg, desc.InterfaceName); ok {
		status.AddFatal(fmt.Sprintf("package %s already declares %s (%s)", pkg.Name, desc.InterfaceName, b.Kind), e.validator.bindingLocation(dir, b))
		return nil, status
	}
	if len(desc.Methods) == 0 {
		status.AddFatal(fmt.Sprintf("no methods of %s selected", desc.Type))
		return nil, status
	}

	members, err := dir.MembersOf(td.Binding)
	if err != nil {
		return nil, types.FatalStatus(err.Error())
	}
	available := make(map[string]types.Binding)
	for _, b := range members {
		if b.Kind == types.MethodBinding {
			available[b.Name] = b
		}
	}

	plan := &interfacePlan{desc: desc, td: td}
	seen := make(map[string]bool)
	for _, name := range desc.Methods {
		if seen[name] {
			status.AddError(fmt.Sprintf("method %s selected twice", name))
			continue
		}
		seen[name] = true
		b, ok := available[name]
		if !ok {
			status.AddFatal(fmt.Sprintf("%s has no method %s", desc.Type, name), loc)
			continue
		}
		method, err := methodSignature(dir, td, b)
		if err != nil {
			status.AddFatal(err.Error(), loc)
			continue
		}
		plan.methods = append(plan.methods, method)
	}

	if desc.FileName != "" {
		path := desc.FileName
		if !filepath.IsAbs(path) {
			path = filepath.Join(pkg.Dir, path)
		}
		plan.filePath = filepath.Clean(path)
		base := filepath.Base(plan.filePath)
		switch {
		case !strings.HasSuffix(base, ".go"):
			status.AddFatal(fmt.Sprintf("file name %s must end in .go", base))
		case strings.HasSuffix(base, "_test.go"):
			status.AddFatal(fmt.Sprintf("file name %s would make the interface test-only", base))
		case filepath.Dir(plan.filePath) != filepath.Clean(pkg.Dir):
			status.AddFatal(fmt.Sprintf("file %s is outside package directory %s", plan.filePath, pkg.Dir))
		}
		if _, err := os.Stat(plan.filePath); err == nil {
			status.AddFatal(fmt.Sprintf("file %s already exists", plan.filePath))
		}
	}
	if status.HasFatal() {
		return nil, status
	}
	return plan, status
}

// methodSignature reads the declared signature of a method of td.
func methodSignature(dir *analysis.Directory, td *analysis.TypeDecl, b types.Binding) (interfaceMethod, error) {
	obj, ok := dir.ObjectOf(b)
	if !ok {
		return interfaceMethod{}, fmt.Errorf("method %s does not resolve", b.Key())
	}
	for _, f := range td.Package.SortedFiles() {
		for _, decl := range f.AST.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv == nil || fd.Name.Pos() != obj.Pos() {
				continue
			}
			start := dir.Position(fd.Type.Params.Pos()).Offset
			end := dir.Position(fd.Type.End()).Offset
			m := interfaceMethod{
				name:      fd.Name.Name,
				signature: string(f.Content[start:end]),
				imports:   collectImports(dir.InfoOf(f), fd.Type, td.Object.Pkg()),
			}
			if fd.Doc != nil {
				m.doc = nodeText(dir, f.Content, fd.Doc)
			}
			return m, nil
		}
	}
	return interfaceMethod{}, fmt.Errorf("declaration of method %s not found", b.Key())
}

func (e *DefaultEngine) buildInterface(ctx context.Context, dir *analysis.Directory, manager *workingcopy.Manager, plan *interfacePlan, name string) (*change.Composite, *types.RefactoringStatus, error) {
	status := types.NewStatus()
	desc := plan.desc
	declPath := plan.td.File.Path
	var refs [][]importRef
	for _, m := range plan.methods {
		refs = append(refs, m.imports)
	}
	imports := mergeImports(refs...)

	// Stage the bare interface and bind it.
	if plan.filePath != "" {
		if _, err := manager.Create(plan.filePath, []byte(interfaceFileSource(plan, imports, nil))); err != nil {
			status.AddFatal(err.Error(), types.Location{File: plan.filePath})
			return nil, status, nil
		}
	} else {
		script, err := e.interfaceScript(dir, plan, imports, nil)
		if err != nil {
			return nil, nil, err
		}
		wc, err := manager.Open(declPath)
		if err != nil {
			status.AddFatal(err.Error(), types.Location{File: declPath})
			return nil, status, nil
		}
		if err := wc.Apply(script); err != nil {
			status.AddFatal(fmt.Sprintf("declaring file changed since the workspace was loaded: %v", err), types.Location{File: declPath})
			return nil, status, nil
		}
	}

	ctx, span := startSpan(ctx, "refactor.ExtractInterface.bindInterface")
	spec, err := e.speculative(ctx, dir, manager)
	span.End()
	if err != nil {
		if types.IsCancelled(err) {
			return nil, nil, err
		}
		status.AddFatal(fmt.Sprintf("staged workspace does not parse: %v", err))
		return nil, status, nil
	}
	pkg, err := spec.Package(plan.td.Package.ImportPath)
	if err != nil {
		status.AddFatal(err.Error())
		return nil, status, nil
	}
	iface, err := spec.LookupType(pkg, desc.InterfaceName)
	if err != nil || iface.Interface == nil {
		status.AddFatal(fmt.Sprintf("extracted interface %s does not resolve", desc.InterfaceName))
		return nil, status, nil
	}
	it, _ := iface.Object.Type().Underlying().(*gotypes.Interface)
	owner, err := spec.LookupType(pkg, desc.Type)
	if err != nil || !implements(owner.Object.Type(), it) {
		status.AddFatal(fmt.Sprintf("%s does not implement %s", desc.Type, desc.InterfaceName), locationOf(dir, plan.td.File, plan.td.Spec.Name.Pos()))
		return nil, status, nil
	}

	var asserted []string
	if desc.AddAssertion {
		asserted = append(asserted, desc.Type)
	}
	var candidates []string
	for _, cand := range desc.Candidates {
		if cand == desc.Type {
			continue
		}
		td, err := spec.LookupType(pkg, cand)
		if err != nil {
			status.AddError(fmt.Sprintf("candidate type %s not found in package %s", cand, pkg.Name))
			continue
		}
		if td.Interface != nil || !implements(td.Object.Type(), it) {
			status.AddError(fmt.Sprintf("candidate type %s does not implement %s", cand, desc.InterfaceName), locationOf(spec, td.File, td.Spec.Name.Pos()))
			continue
		}
		candidates = append(candidates, cand)
		asserted = append(asserted, cand)
	}

	subs, err := spec.SubtypesOf(ctx, iface.Binding)
	if err != nil {
		return nil, nil, err
	}
	listed := map[string]bool{desc.Type: true}
	for _, cand := range candidates {
		listed[cand] = true
	}
	for _, b := range subs {
		if b.Package == pkg.ImportPath && listed[b.Name] {
			continue
		}
		status.AddInfo(fmt.Sprintf("type %s.%s also satisfies %s", b.Package, b.Name, desc.InterfaceName))
	}

	asm := change.NewAssembler()
	if plan.filePath != "" {
		if err := asm.AddCreate(plan.filePath, []byte(interfaceFileSource(plan, imports, asserted))); err != nil {
			return nil, nil, err
		}
	} else {
		script, err := e.interfaceScript(dir, plan, imports, asserted)
		if err != nil {
			return nil, nil, err
		}
		if err := asm.Add(script); err != nil {
			return nil, nil, err
		}
	}

	recorded := *desc
	recorded.Candidates = candidates
	if plan.filePath != "" {
		recorded.FileName = filepath.Base(plan.filePath)
	}
	c := asm.Build(name, e.interfaceDescriptor(dir, plan, &recorded), e.logger)
	if e.config.VerifyResult {
		verified, err := e.verify(ctx, dir, manager, c)
		if err != nil {
			return nil, nil, err
		}
		status.Merge(verified)
	}
	return c, status, nil
}

// interfaceScript inserts the interface after the declaration of the type
// and imports what the method signatures reference.
func (e *DefaultEngine) interfaceScript(dir *analysis.Directory, plan *interfacePlan, imports []importRef, asserted []string) (*change.EditScript, error) {
	file := plan.td.File
	script := change.NewEditScript(file.Path)
	at := dir.Position(plan.td.GenDecl.End()).Offset
	text := "\n\n" + strings.TrimRight(interfaceSource(plan, asserted), "\n")
	if err := script.Add(change.Edit{Start: at, End: at, NewText: text, Category: change.AddSupertype}); err != nil {
		return nil, err
	}

	ledger := NewImportLedger(file.Path)
	for _, ref := range imports {
		ledger.Add(ref.Path, ref.Name)
	}
	edits, err := ledger.Resolve(dir.Workspace().FileSet, file.AST, file.Content, nil)
	if err != nil {
		return nil, err
	}
	for _, ed := range edits {
		if err := script.Add(ed); err != nil {
			return nil, err
		}
	}
	return script, nil
}

// interfaceSource renders the interface declaration followed by the
// compile-time assertions.
func interfaceSource(plan *interfacePlan, asserted []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s is the method set extracted from %s.\n", plan.desc.InterfaceName, plan.desc.Type)
	fmt.Fprintf(&b, "type %s interface {\n", plan.desc.InterfaceName)
	for _, m := range plan.methods {
		for _, l := range strings.Split(m.doc, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				b.WriteString("\t" + l + "\n")
			}
		}
		b.WriteString("\t" + m.name + m.signature + "\n")
	}
	b.WriteString("}\n")
	if len(asserted) > 0 {
		b.WriteString("\n")
		for _, t := range asserted {
			fmt.Fprintf(&b, "var _ %s = (*%s)(nil)\n", plan.desc.InterfaceName, t)
		}
	}
	return b.String()
}

func interfaceFileSource(plan *interfacePlan, imports []importRef, asserted []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", plan.td.Package.Name)
	b.WriteString(importBlock(imports))
	b.WriteString(interfaceSource(plan, asserted))
	return b.String()
}

func (e *DefaultEngine) interfaceDescriptor(dir *analysis.Directory, plan *interfacePlan, desc *types.ExtractInterfaceDescriptor) *types.PersistableDescriptor {
	var methods []string
	for _, m := range plan.methods {
		methods = append(methods, "'"+m.name+"'")
	}
	desc.Methods = nil
	for _, m := range plan.methods {
		desc.Methods = append(desc.Methods, m.name)
	}
	lines := []string{
		fmt.Sprintf("Original type: '%s.%s'", plan.td.Package.ImportPath, desc.Type),
		"Methods: " + strings.Join(methods, ", "),
	}
	if len(desc.Candidates) > 0 {
		lines = append(lines, "Asserted candidates: "+strings.Join(desc.Candidates, ", "))
	}
	if desc.AddAssertion {
		lines = append(lines, "Assert implementation of the original type")
	}
	if desc.FileName != "" {
		lines = append(lines, fmt.Sprintf("Create interface in new file '%s'", desc.FileName))
	}
	return &types.PersistableDescriptor{
		ID:          types.ExtractInterfaceID,
		Project:     e.modulePath(dir),
		Description: fmt.Sprintf("Extract interface '%s' from '%s'", desc.InterfaceName, desc.Type),
		Comment:     strings.Join(lines, "\n"),
		Attributes:  desc.Attributes(plan.td.Package.ImportPath),
	}
}

func implements(t gotypes.Type, it *gotypes.Interface) bool {
	if it == nil {
		return false
	}
	return gotypes.Implements(t, it) || gotypes.Implements(gotypes.NewPointer(t), it)
}
