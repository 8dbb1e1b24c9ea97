package refactor

import (
	"bytes"
	"fmt"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// Validator checks the preconditions of an extraction. Every check returns a
// status; merged statuses keep the highest severity. The validator never
// modifies the model.
type Validator struct {
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateName checks that candidate can name a new declaration.
func (v *Validator) ValidateName(candidate, what string) *types.RefactoringStatus {
	status := types.NewStatus()
	switch {
	case candidate == "":
		status.AddFatal(fmt.Sprintf("%s must not be empty", what))
	case candidate == "_":
		status.AddFatal(fmt.Sprintf("%s must not be the blank identifier", what))
	case v.isGoKeyword(candidate):
		status.AddFatal(fmt.Sprintf("%s %q is a Go keyword", what, candidate))
	case !v.isValidGoIdentifier(candidate):
		status.AddFatal(fmt.Sprintf("%s %q is not a valid Go identifier", what, candidate))
	}
	return status
}

// ValidateFields checks the field selection: it must not be empty, every
// selected name must be a field of the container, and no two moved fields
// may end up with the same name.
func (v *Validator) ValidateFields(m *Model) *types.RefactoringStatus {
	status := types.NewStatus()
	if len(m.Selection()) == 0 {
		status.AddFatal(fmt.Sprintf("no fields of %s selected", m.ContainerName()))
		return status
	}
	for _, name := range m.Unknown() {
		status.AddFatal(fmt.Sprintf("%s has no field %s", m.ContainerName(), name))
	}
	if status.HasFatal() {
		return status
	}

	seen := make(map[string]string)
	for _, fi := range m.Moved() {
		status.Merge(v.ValidateName(fi.NewName, "field name"))
		if prev, ok := seen[fi.Stored]; ok {
			status.AddError(fmt.Sprintf("fields %s and %s would both be named %s in %s", prev, fi.Name, fi.Stored, m.TypeName))
			continue
		}
		seen[fi.Stored] = fi.Name
	}
	return status
}

// ValidateModifiers checks a single selected field. Embedded fields cannot
// move: their promoted members would disappear from the container. Tagged
// fields and fields of sync or sync/atomic types move with a warning, since
// encodings and copy semantics of the container change.
func (v *Validator) ValidateModifiers(fi *FieldInfo) *types.RefactoringStatus {
	status := types.NewStatus()
	loc := v.fieldLocation(fi)
	if fi.Embedded {
		status.AddFatal(fmt.Sprintf("embedded field %s cannot be extracted", fi.Name), loc)
		return status
	}
	if fi.Tag != "" {
		status.AddWarning(fmt.Sprintf("field %s has struct tag %s; encodings of %s will change shape", fi.Name, fi.Tag, fi.model.ContainerName()), loc)
	}
	if fi.obj != nil && isSyncType(fi.obj.Type()) {
		status.AddWarning(fmt.Sprintf("field %s has type %s; it must not be copied once the extracted value is in use", fi.Name, fi.Type), loc)
	}
	return status
}

// ValidateAll runs every precondition that only depends on the model and
// the committed workspace.
func (v *Validator) ValidateAll(dir *analysis.Directory, m *Model) *types.RefactoringStatus {
	status := v.ValidateFields(m)
	if status.HasFatal() {
		return status
	}
	for _, fi := range m.Fields() {
		if fi.Include {
			status.Merge(v.ValidateModifiers(fi))
		}
	}
	if status.HasFatal() || len(m.Moved()) == 0 {
		return status
	}

	status.Merge(v.ValidateName(m.TypeName, "type name"))
	status.Merge(v.ValidateName(m.HolderName, "field name"))
	if status.HasFatal() {
		return status
	}

	pkg := m.Package()
	if b, ok := dir.Declares(pkg, m.TypeName); ok {
		status.AddFatal(fmt.Sprintf("package %s already declares %s (%s)", pkg.Name, m.TypeName, b.Kind), v.bindingLocation(dir, b))
	}
	status.Merge(v.checkHolder(dir, m))
	status.Merge(v.checkAccessors(m))
	if m.TopLevel {
		status.Merge(v.checkNewFile(m))
	}
	return status
}

// ValidateConstructor checks the constructor name once the constructor
// parameters are known.
func (v *Validator) ValidateConstructor(dir *analysis.Directory, m *Model) *types.RefactoringStatus {
	status := types.NewStatus()
	name := m.ConstructorName()
	if name == "" {
		return status
	}
	if b, ok := dir.Declares(m.Package(), name); ok {
		status.AddFatal(fmt.Sprintf("package %s already declares %s", m.Package().Name, name), v.bindingLocation(dir, b))
	}
	return status
}

// ValidateCrossPackage checks references from other packages. Those can
// only reach exported names of the extracted type.
func (v *Validator) ValidateCrossPackage(m *Model, groups []*types.SearchResultGroup, external func(file string) bool) *types.RefactoringStatus {
	status := types.NewStatus()
	for _, g := range groups {
		if !external(g.File) {
			continue
		}
		for _, occ := range g.Occurrences {
			loc := types.Location{File: occ.File, Line: occ.Line, Column: occ.Column}
			if occ.Kind == types.InitializerAccess {
				if !m.TypeExported() {
					status.AddError(fmt.Sprintf("%s is initialized in another package but %s is not exported", m.ContainerName(), m.TypeName), loc)
				}
				continue
			}
			fi, ok := m.Field(occ.Binding.Name)
			if !ok || occ.Kind == types.DeclarationSite || m.Accessors {
				continue
			}
			if !token.IsExported(fi.Stored) {
				status.AddError(fmt.Sprintf("field %s is used in another package but would be renamed to unexported %s", fi.Name, fi.Stored), loc)
			}
		}
	}
	return status
}

func (v *Validator) checkHolder(dir *analysis.Directory, m *Model) *types.RefactoringStatus {
	status := types.NewStatus()
	members, err := dir.MembersOf(m.Container.Binding)
	if err != nil {
		status.AddFatal(err.Error())
		return status
	}
	for _, member := range members {
		if member.Name != m.HolderName {
			continue
		}
		if fi, ok := m.Field(member.Name); ok && fi.Include && member.Kind == types.FieldBinding {
			continue
		}
		status.AddFatal(fmt.Sprintf("%s already has a %s named %s", m.ContainerName(), member.Kind, m.HolderName), v.bindingLocation(dir, member))
	}

	// A holder would shadow a field or method promoted from an embedded type.
	named := m.Container.Named()
	if named == nil {
		return status
	}
	obj, index, _ := gotypes.LookupFieldOrMethod(named, true, named.Obj().Pkg(), m.HolderName)
	if len(index) > 1 {
		var loc types.Location
		kind := "member"
		if obj != nil {
			pos := dir.Position(obj.Pos())
			loc = types.Location{File: pos.Filename, Line: pos.Line, Column: pos.Column}
			kind = "field"
			if _, ok := obj.(*gotypes.Func); ok {
				kind = "method"
			}
		}
		status.AddFatal(fmt.Sprintf("%s already has a promoted %s named %s", m.ContainerName(), kind, m.HolderName), loc)
	}
	return status
}

func (v *Validator) checkAccessors(m *Model) *types.RefactoringStatus {
	status := types.NewStatus()
	if !m.Accessors {
		return status
	}
	names := make(map[string]string)
	for _, fi := range m.Moved() {
		names[fi.Stored] = "field " + fi.Stored
	}
	for _, fi := range m.Moved() {
		for _, acc := range []string{fi.Getter, fi.Setter} {
			if prev, ok := names[acc]; ok {
				status.AddFatal(fmt.Sprintf("accessor %s of field %s collides with %s", acc, fi.Name, prev), v.fieldLocation(fi))
				continue
			}
			names[acc] = "accessor of " + fi.Name
		}
	}
	return status
}

func (v *Validator) checkNewFile(m *Model) *types.RefactoringStatus {
	status := types.NewStatus()
	base := filepath.Base(m.FilePath)
	switch {
	case !strings.HasSuffix(base, ".go"):
		status.AddFatal(fmt.Sprintf("file name %s must end in .go", base))
	case strings.HasSuffix(base, "_test.go"):
		status.AddFatal(fmt.Sprintf("file name %s would make the type test-only", base))
	case filepath.Dir(m.FilePath) != filepath.Clean(m.Package().Dir):
		status.AddFatal(fmt.Sprintf("file %s is outside package directory %s", m.FilePath, m.Package().Dir))
	}
	if _, err := os.Stat(m.FilePath); err == nil {
		status.AddFatal(fmt.Sprintf("file %s already exists", m.FilePath))
	}
	return status
}

// fieldLocation points at the name of fi in the container's file.
func (v *Validator) fieldLocation(fi *FieldInfo) types.Location {
	file := fi.model.Container.File
	loc := types.Location{File: file.Path}
	if fi.Binding.File != "" && fi.Binding.File != file.Path {
		return types.Location{File: fi.Binding.File}
	}
	if off := fi.Binding.Offset; off > 0 && off <= len(file.Content) {
		before := file.Content[:off]
		loc.Line = 1 + bytes.Count(before, []byte("\n"))
		loc.Column = off - bytes.LastIndexByte(before, '\n')
	}
	return loc
}

func (v *Validator) bindingLocation(dir *analysis.Directory, b types.Binding) types.Location {
	if b.File == "" {
		return types.Location{}
	}
	loc := types.Location{File: b.File}
	if f := dir.File(b.File); f != nil {
		tf := dir.Workspace().FileSet.File(f.AST.Pos())
		if tf != nil && b.Offset <= tf.Size() {
			p := tf.Position(tf.Pos(b.Offset))
			loc.Line, loc.Column = p.Line, p.Column
		}
	}
	return loc
}

// isSyncType reports whether t is, or directly contains, a type of package
// sync or sync/atomic.
func isSyncType(t gotypes.Type) bool {
	if arr, ok := t.(*gotypes.Array); ok {
		t = arr.Elem()
	}
	named, ok := gotypes.Unalias(t).(*gotypes.Named)
	if !ok || named.Obj().Pkg() == nil {
		return false
	}
	switch named.Obj().Pkg().Path() {
	case "sync", "sync/atomic":
		return true
	}
	return false
}

func (v *Validator) isValidGoIdentifier(name string) bool {
	if len(name) == 0 {
		return false
	}

	for i, r := range name {
		if i == 0 && !unicode.IsLetter(r) && r != '_' {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func (v *Validator) isGoKeyword(name string) bool {
	return token.IsKeyword(name)
}
