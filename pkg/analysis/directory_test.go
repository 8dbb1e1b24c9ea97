package analysis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const shapesModule = "module example.com/m\n\ngo 1.22\n"

const shapesSrc = `package shapes

type Rectangle struct {
	Width, Height int
	color         string
}

type Circle struct {
	Width int
}

func (r *Rectangle) Area() int { return r.Width * r.Height }

func touch(obj *Rectangle, y int) int {
	x := 0
	x = obj.Width
	obj.Width = y
	obj.Width += 1
	obj.Height++
	c := Circle{Width: 2}
	return x + c.Width
}

var origin = Rectangle{1, 2, "red"}
`

const usesSrc = `package render

import "example.com/m/shapes"

func Draw(r shapes.Rectangle) int {
	return r.Width
}
`

func newShapesDirectory(t *testing.T) (*Directory, string) {
	t.Helper()
	root := writeModule(t, map[string]string{
		"go.mod":           shapesModule,
		"shapes/shapes.go": shapesSrc,
		"render/render.go": usesSrc,
	})
	d, err := NewDirectory(context.Background(), root, DiskSource{}, testLogger())
	require.NoError(t, err)
	return d, root
}

func fieldBinding(t *testing.T, d *Directory, pkgRef, typ, field string) types.Binding {
	t.Helper()
	pkg, err := d.Package(pkgRef)
	require.NoError(t, err)
	decl, err := d.LookupType(pkg, typ)
	require.NoError(t, err)
	members, err := d.MembersOf(decl.Binding)
	require.NoError(t, err)
	for _, m := range members {
		if m.Kind == types.FieldBinding && m.Name == field {
			return m
		}
	}
	t.Fatalf("field %s.%s not found", typ, field)
	return types.Binding{}
}

func TestParseWorkspace(t *testing.T) {
	d, root := newShapesDirectory(t)
	ws := d.Workspace()

	assert.Equal(t, "example.com/m", ws.Module.Path)
	assert.Equal(t, "1.22", ws.Module.GoVersion)
	require.Len(t, ws.Packages, 2)
	assert.Equal(t, filepath.Join(root, "shapes"), ws.ImportToPath["example.com/m/shapes"])

	importers := d.Imports().GetImporters("example.com/m/shapes")
	require.Len(t, importers, 1)
	assert.Equal(t, "example.com/m/render", importers[0].Path)
}

func TestFindReferences_Classification(t *testing.T) {
	d, root := newShapesDirectory(t)
	width := fieldBinding(t, d, "shapes", "Rectangle", "Width")
	assert.Equal(t, "example.com/m/shapes.Rectangle.Width", width.Key())

	groups, err := d.FindReferences(context.Background(), []types.Binding{width}, d.ReferenceScope(width))
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, filepath.Join(root, "render", "render.go"), groups[0].File)
	require.Len(t, groups[0].Occurrences, 1)
	assert.Equal(t, types.ReadAccess, groups[0].Occurrences[0].Kind)

	type got struct {
		kind     types.OccurrenceKind
		compound bool
		line     int
	}
	var occs []got
	for _, o := range groups[1].Occurrences {
		occs = append(occs, got{o.Kind, o.Compound, o.Line})
	}
	assert.Equal(t, []got{
		{types.DeclarationSite, false, 4},
		{types.ReadAccess, false, 12},  // Area
		{types.ReadAccess, false, 16},  // x = obj.Width
		{types.WriteAccess, false, 17}, // obj.Width = y
		{types.WriteAccess, true, 18},  // obj.Width += 1
	}, occs, "Circle.Width and the positional literal must not match")
}

func TestFindReferences_UnexportedScope(t *testing.T) {
	d, _ := newShapesDirectory(t)
	color := fieldBinding(t, d, "example.com/m/shapes", "Rectangle", "color")

	scope := d.ReferenceScope(color)
	require.Len(t, scope.Packages, 1)
	assert.Equal(t, "example.com/m/shapes", scope.Packages[0].ImportPath)

	height := fieldBinding(t, d, "shapes", "Rectangle", "Height")
	assert.Len(t, d.ReferenceScope(height).Packages, 2)
}

func TestFindReferences_IncDec(t *testing.T) {
	d, _ := newShapesDirectory(t)
	height := fieldBinding(t, d, "shapes", "Rectangle", "Height")

	groups, err := d.FindReferences(context.Background(), []types.Binding{height}, d.ReferenceScope(height))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	last := groups[0].Occurrences[len(groups[0].Occurrences)-1]
	assert.Equal(t, types.WriteAccess, last.Kind)
	assert.True(t, last.Compound)
}

func TestFindReferences_Cancelled(t *testing.T) {
	d, _ := newShapesDirectory(t)
	width := fieldBinding(t, d, "shapes", "Rectangle", "Width")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.FindReferences(ctx, []types.Binding{width}, d.WorkspaceScope())
	require.Error(t, err)
	assert.True(t, types.IsCancelled(err))
}

func TestPositionalLiterals(t *testing.T) {
	d, _ := newShapesDirectory(t)
	pkg, err := d.Package("shapes")
	require.NoError(t, err)
	rect, err := d.LookupType(pkg, "Rectangle")
	require.NoError(t, err)

	groups, err := d.PositionalLiterals(context.Background(), rect.Binding, d.WorkspaceScope())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Occurrences, 1)

	occ := groups[0].Occurrences[0]
	content := string(d.File(groups[0].File).Content)
	assert.Equal(t, `{1, 2, "red"}`, content[occ.Offset:occ.End()])
}

func TestResolve(t *testing.T) {
	d, root := newShapesDirectory(t)
	path := filepath.Join(root, "render", "render.go")
	offset := strings.Index(usesSrc, "r.Width") + 2

	b, ok := d.Resolve(path, offset)
	require.True(t, ok)
	assert.Equal(t, types.FieldBinding, b.Kind)
	assert.Equal(t, "Rectangle", b.Owner)
	assert.Equal(t, filepath.Join(root, "shapes", "shapes.go"), b.File)

	_, ok = d.Resolve(path, 0)
	assert.False(t, ok, "package keyword is not an identifier")
}

func TestMembersOf(t *testing.T) {
	d, _ := newShapesDirectory(t)
	pkg, err := d.Package("shapes")
	require.NoError(t, err)
	rect, err := d.LookupType(pkg, "Rectangle")
	require.NoError(t, err)
	require.NotNil(t, rect.Struct)

	members, err := d.MembersOf(rect.Binding)
	require.NoError(t, err)
	var names []string
	for _, m := range members {
		names = append(names, m.Kind.String()+":"+m.Name)
	}
	assert.Equal(t, []string{"Field:Width", "Field:Height", "Field:color", "Method:Area"}, names)

	_, err = d.LookupType(pkg, "Missing")
	var re *types.RefactorError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, types.SymbolNotFound, re.Type)
}

func TestHierarchy(t *testing.T) {
	root := writeModule(t, map[string]string{
		"go.mod": shapesModule,
		"shapes/shapes.go": `package shapes

type Shape interface{ Area() int }

type Rectangle struct{ w, h int }

func (r *Rectangle) Area() int { return r.w * r.h }

type Square struct{ Rectangle }

type Point struct{ x int }
`,
	})
	d, err := NewDirectory(context.Background(), root, DiskSource{}, testLogger())
	require.NoError(t, err)

	shape := types.Binding{Kind: types.TypeBinding, Package: "example.com/m/shapes", Name: "Shape"}
	square := types.Binding{Kind: types.TypeBinding, Package: "example.com/m/shapes", Name: "Square"}

	subs, err := d.SubtypesOf(context.Background(), shape)
	require.NoError(t, err)
	var names []string
	for _, s := range subs {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Rectangle", "Square"}, names, "Square implements Shape through promotion")

	supers, err := d.SupertypesOf(context.Background(), square)
	require.NoError(t, err)
	names = names[:0]
	for _, s := range supers {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Rectangle", "Shape"}, names)
}

type mapSource struct {
	DiskSource
	overlay map[string][]byte
}

func (m mapSource) ReadFile(path string) ([]byte, error) {
	if data, ok := m.overlay[path]; ok {
		return data, nil
	}
	return m.DiskSource.ReadFile(path)
}

func TestOverlaySourceBindings(t *testing.T) {
	d, root := newShapesDirectory(t)
	path := filepath.Join(root, "shapes", "shapes.go")
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	// Same content served from memory binds identically.
	spec, err := NewDirectory(context.Background(), root, mapSource{overlay: map[string][]byte{path: content}}, testLogger())
	require.NoError(t, err)

	a := fieldBinding(t, d, "shapes", "Rectangle", "Height")
	b := fieldBinding(t, spec, "shapes", "Rectangle", "Height")
	assert.Equal(t, a, b)
}

func TestTestFilesAreSearched(t *testing.T) {
	root := writeModule(t, map[string]string{
		"go.mod":           shapesModule,
		"shapes/shapes.go": "package shapes\n\ntype Box struct{ Size int }\n",
		"shapes/box_test.go": `package shapes

func useBox() int { return Box{}.Size }
`,
		"shapes/ext_test.go": `package shapes_test

import "example.com/m/shapes"

func useExt() int { return shapes.Box{Size: 1}.Size }
`,
	})
	d, err := NewDirectory(context.Background(), root, DiskSource{}, testLogger())
	require.NoError(t, err)

	size := fieldBinding(t, d, "shapes", "Box", "Size")
	groups, err := d.FindReferences(context.Background(), []types.Binding{size}, d.ReferenceScope(size))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, g := range groups {
		counts[filepath.Base(g.File)] = len(g.Occurrences)
	}
	assert.Equal(t, map[string]int{"shapes.go": 1, "box_test.go": 1, "ext_test.go": 2}, counts)

	pkg, err := d.Package("shapes")
	require.NoError(t, err)
	assert.Empty(t, d.TypeErrors(pkg))
}
