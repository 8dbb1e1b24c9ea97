package refactor

import (
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// FieldInfo describes one field of the container type. The model owns every
// FieldInfo; other components work on ParameterInfo copies.
type FieldInfo struct {
	Name     string // name in the container
	NewName  string // name requested for the extracted type
	Stored   string // name of the field inside the extracted type
	Type     string // declared type, as written
	Ordinal  int    // position among all field names of the container
	Include  bool
	Binding  types.Binding
	Exported bool
	Embedded bool
	Tag      string
	Doc      string
	Comment  string

	// Getter and Setter are empty unless accessors are generated.
	Getter string
	Setter string

	obj      *gotypes.Var
	line     *ast.Field
	imports  []importRef
	model    *Model
	sibling  sync.Once
	hasSibRf bool
}

// HasSiblingReference reports whether a composite literal initializes this
// field with an expression reading another moved field. Such fields are
// initialized in place rather than passed to the constructor. The answer is
// computed once, after the initializer index has been bound.
func (fi *FieldInfo) HasSiblingReference() bool {
	if !fi.model.bound {
		return false
	}
	fi.sibling.Do(func() {
		fi.hasSibRf = fi.model.siblingRefs[fi.Name]
	})
	return fi.hasSibRf
}

// Parameter returns a value copy of the field's extraction parameters.
func (fi *FieldInfo) Parameter() ParameterInfo {
	return ParameterInfo{
		Name:        fi.Name,
		NewName:     fi.NewName,
		Stored:      fi.Stored,
		Type:        fi.Type,
		Ordinal:     fi.Ordinal,
		Getter:      fi.Getter,
		Setter:      fi.Setter,
		Constructor: !fi.HasSiblingReference(),
		Binding:     fi.Binding,
	}
}

// ParameterInfo is the small value copy of a moved field handed to the code
// generator and the reference rewriter.
type ParameterInfo struct {
	Name        string
	NewName     string
	Stored      string
	Type        string
	Ordinal     int
	Getter      string
	Setter      string
	Constructor bool
	Binding     types.Binding
}

// slot is one field name of the container in declaration order, including
// embedded and blank fields. Positional literals list one element per slot.
type slot struct {
	name  string
	line  *ast.Field
	field *FieldInfo // nil for blank fields
}

// Model is the normalized extraction request for one container type.
type Model struct {
	Container  *analysis.TypeDecl
	TypeName   string
	HolderName string
	Accessors  bool
	TopLevel   bool
	FilePath   string // new file, top-level mode only

	fields      *orderedmap.OrderedMap[string, *FieldInfo]
	slots       []slot
	selection   []types.FieldSelection
	unknown     []string
	siblingRefs map[string]bool
	bound       bool
}

// NameQueries supplies user-chosen names when the descriptor leaves them
// open. Each method receives the computed default.
type NameQueries interface {
	TypeName(container, proposed string) string
	HolderName(container, typeName, proposed string) string
	FieldName(field, proposed string) string
}

// DefaultNames accepts every proposed name. Used for headless runs and replay.
type DefaultNames struct{}

func (DefaultNames) TypeName(_, proposed string) string      { return proposed }
func (DefaultNames) HolderName(_, _, proposed string) string { return proposed }
func (DefaultNames) FieldName(_, proposed string) string     { return proposed }

// BuildModel turns the descriptor and the container declaration into the
// ordered field table. It fails with a fatal status when the container has
// no field that could be extracted.
func BuildModel(dir *analysis.Directory, td *analysis.TypeDecl, desc *types.ExtractStructDescriptor, names NameQueries) (*Model, *types.RefactoringStatus) {
	loc := locationOf(dir, td.File, td.Spec.Name.Pos())
	if td.Struct == nil {
		return nil, types.FatalStatus(fmt.Sprintf("type %s is not a struct type", td.Spec.Name.Name), loc)
	}
	if td.Spec.TypeParams != nil {
		return nil, types.FatalStatus(fmt.Sprintf("type %s is generic; extracting fields of generic types is not supported", td.Spec.Name.Name), loc)
	}
	if names == nil {
		names = DefaultNames{}
	}

	m := &Model{
		Container: td,
		Accessors: desc.CreateAccessors,
		TopLevel:  desc.CreateTopLevel,
		fields:    orderedmap.New[string, *FieldInfo](),
		selection: desc.Fields,
	}

	info := dir.InfoOf(td.File)
	src := td.File.Content
	eligible := 0
	ordinal := 0
	for _, line := range td.Struct.Fields.List {
		typeText := nodeText(dir, src, line.Type)
		if len(line.Names) == 0 {
			name := embeddedName(line.Type)
			m.fields.Set(name, &FieldInfo{Name: name, Type: typeText, Ordinal: ordinal, Embedded: true, line: line, model: m})
			m.slots = append(m.slots, slot{name: name, line: line})
			ordinal++
			continue
		}
		for _, ident := range line.Names {
			if ident.Name == "_" {
				m.slots = append(m.slots, slot{name: "_", line: line})
				ordinal++
				continue
			}
			fi := &FieldInfo{
				Name:     ident.Name,
				NewName:  ident.Name,
				Type:     typeText,
				Ordinal:  ordinal,
				Exported: token.IsExported(ident.Name),
				line:     line,
				model:    m,
				imports:  collectImports(info, line.Type, td.Object.Pkg()),
			}
			if line.Tag != nil {
				fi.Tag = line.Tag.Value
			}
			if line.Comment != nil {
				fi.Comment = nodeText(dir, src, line.Comment)
			}
			if line.Doc != nil {
				fi.Doc = nodeText(dir, src, line.Doc)
			}
			if v, ok := info.Defs[ident].(*gotypes.Var); ok {
				fi.obj = v
				fi.Binding = dir.BindingOf(v)
			}
			m.fields.Set(ident.Name, fi)
			m.slots = append(m.slots, slot{name: ident.Name, line: line, field: fi})
			eligible++
			ordinal++
		}
	}
	if eligible == 0 {
		return nil, types.FatalStatus(fmt.Sprintf("type %s has no fields that can be extracted", td.Spec.Name.Name), loc)
	}

	anyExported := false
	for _, sel := range desc.Fields {
		fi, ok := m.fields.Get(sel.Name)
		if !ok {
			m.unknown = append(m.unknown, sel.Name)
			continue
		}
		fi.Include = sel.Include
		proposed := sel.NewName
		if proposed == "" {
			proposed = sel.Name
		}
		fi.NewName = names.FieldName(sel.Name, proposed)
		if fi.Include && fi.Exported {
			anyExported = true
		}
	}

	container := td.Spec.Name.Name
	m.TypeName = desc.ClassName
	if m.TypeName == "" {
		m.TypeName = names.TypeName(container, container+"Parameter")
	}
	holder := desc.FieldName
	if holder == "" {
		holder = names.HolderName(container, m.TypeName, lowerFirst(m.TypeName))
	}
	// The holder is as visible as the most visible field folded into it.
	if anyExported {
		m.HolderName = upperFirst(holder)
	} else {
		m.HolderName = lowerFirst(holder)
	}

	m.assignStoredNames()

	if m.TopLevel {
		name := desc.FileName
		if name == "" {
			name = snakeCase(m.TypeName) + ".go"
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(td.Package.Dir, name)
		}
		m.FilePath = filepath.Clean(name)
	}
	return m, types.NewStatus()
}

// assignStoredNames decides the field names inside the extracted type and,
// with accessors, the getter and setter names. Accessor-backed fields are
// unexported.
func (m *Model) assignStoredNames() {
	used := make(map[string]bool)
	for _, fi := range m.Moved() {
		if !m.Accessors {
			fi.Stored = fi.NewName
			continue
		}
		stored := lowerFirst(fi.NewName)
		if token.IsKeyword(stored) {
			stored += "_"
		}
		base := stored
		for i := 2; used[stored]; i++ {
			stored = fmt.Sprintf("%s%d", base, i)
		}
		used[stored] = true
		fi.Stored = stored
		fi.Getter = upperFirst(fi.NewName)
		fi.Setter = "Set" + upperFirst(fi.NewName)
	}
}

// Fields returns every field of the container in declaration order.
func (m *Model) Fields() []*FieldInfo {
	out := make([]*FieldInfo, 0, m.fields.Len())
	for pair := m.fields.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Field returns the field with the given original name.
func (m *Model) Field(name string) (*FieldInfo, bool) {
	return m.fields.Get(name)
}

// Moved returns the included fields in declaration order.
func (m *Model) Moved() []*FieldInfo {
	var out []*FieldInfo
	for pair := m.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Include && !pair.Value.Embedded {
			out = append(out, pair.Value)
		}
	}
	return out
}

// Parameters returns value copies of the moved fields in declaration order.
func (m *Model) Parameters() []ParameterInfo {
	moved := m.Moved()
	out := make([]ParameterInfo, len(moved))
	for i, fi := range moved {
		out[i] = fi.Parameter()
	}
	return out
}

// Bindings returns the bindings of the moved fields.
func (m *Model) Bindings() []types.Binding {
	var out []types.Binding
	for _, fi := range m.Moved() {
		out = append(out, fi.Binding)
	}
	return out
}

// Selection returns the field selection of the descriptor.
func (m *Model) Selection() []types.FieldSelection { return m.selection }

// Unknown returns selected names that are not fields of the container.
func (m *Model) Unknown() []string { return m.unknown }

// ContainerName returns the name of the declaring type.
func (m *Model) ContainerName() string { return m.Container.Spec.Name.Name }

// Package returns the declaring package.
func (m *Model) Package() *types.Package { return m.Container.Package }

// TypeExported reports whether the extracted type is exported.
func (m *Model) TypeExported() bool { return token.IsExported(m.TypeName) }

// ConstructorName returns the name of the generated constructor, or "" when
// no moved field can be passed as a constructor argument.
func (m *Model) ConstructorName() string {
	for _, fi := range m.Moved() {
		if !fi.HasSiblingReference() {
			if m.TypeExported() {
				return "New" + m.TypeName
			}
			return "new" + upperFirst(m.TypeName)
		}
	}
	return ""
}

// BindInitializers records which moved fields are initialized from sibling
// moved fields. It may be called once.
func (m *Model) BindInitializers(refs map[string]bool) error {
	if m.bound {
		return types.NewInvariantError(m.Container.File.Path, "initializer index bound twice")
	}
	m.bound = true
	m.siblingRefs = refs
	return nil
}

// Descriptor returns the descriptor with every computed name filled in.
func (m *Model) Descriptor() *types.ExtractStructDescriptor {
	d := &types.ExtractStructDescriptor{
		Package:         m.Package().ImportPath,
		Type:            m.ContainerName(),
		ClassName:       m.TypeName,
		FieldName:       m.HolderName,
		CreateAccessors: m.Accessors,
		CreateTopLevel:  m.TopLevel,
	}
	if m.TopLevel {
		d.FileName = filepath.Base(m.FilePath)
	}
	for _, fi := range m.Fields() {
		if fi.Embedded {
			continue
		}
		d.Fields = append(d.Fields, types.FieldSelection{Name: fi.Name, NewName: fi.NewName, Include: fi.Include})
	}
	return d
}

// holderSlot returns the index of the last slot of the last field line that
// loses a name. The holder field follows that slot.
func (m *Model) holderSlot() int {
	var last *ast.Field
	for _, fi := range m.Moved() {
		last = fi.line
	}
	at := -1
	for i, s := range m.slots {
		if s.line == last {
			at = i
		}
	}
	return at
}

func locationOf(dir *analysis.Directory, file *types.File, pos token.Pos) types.Location {
	p := dir.Position(pos)
	return types.Location{File: file.Path, Line: p.Line, Column: p.Column}
}

// nodeText returns the source text of n.
func nodeText(dir *analysis.Directory, src []byte, n ast.Node) string {
	start, end := dir.Position(n.Pos()).Offset, dir.Position(n.End()).Offset
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

func embeddedName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(e.X)
	case *ast.SelectorExpr:
		return e.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(e.X)
	case *ast.IndexListExpr:
		return embeddedName(e.X)
	case *ast.Ident:
		return e.Name
	}
	return "?"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	// Leading acronyms are lowered as a whole: URLParts -> urlParts.
	i := 0
	for i < len(r) && unicode.IsUpper(r[i]) {
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
		i++
	}
	return string(r)
}

// upperFirst exports an identifier; NoLower keeps the rest of it intact.
func upperFirst(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(s)
}

func snakeCase(s string) string {
	var b strings.Builder
	r := []rune(s)
	for i, c := range r {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(r[i-1]) || (i+1 < len(r) && unicode.IsLower(r[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
