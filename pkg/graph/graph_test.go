package graph

import (
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/types"
)

func newTestWorkspace() *types.Workspace {
	ws := &types.Workspace{
		RootPath:     "/ws",
		Packages:     make(map[string]*types.Package),
		ImportToPath: make(map[string]string),
		FileSet:      token.NewFileSet(),
	}
	add := func(dir, importPath string, imports ...string) {
		ws.Packages[dir] = &types.Package{
			Path:       dir,
			Dir:        dir,
			ImportPath: importPath,
			Imports:    imports,
			Files:      map[string]*types.File{},
			TestFiles:  map[string]*types.File{},
		}
		ws.ImportToPath[importPath] = dir
	}
	add("/ws/shapes", "example.com/m/shapes", "fmt")
	add("/ws/render", "example.com/m/render", "example.com/m/shapes", "strings")
	add("/ws/cmd", "example.com/m/cmd", "example.com/m/render")
	add("/ws/other", "example.com/m/other")
	return ws
}

func TestImportGraph_Importers(t *testing.T) {
	ig := NewImportGraph(newTestWorkspace())

	paths := func(nodes []*ImportNode) []string {
		var out []string
		for _, n := range nodes {
			out = append(out, n.Path)
		}
		return out
	}

	assert.Equal(t, []string{"example.com/m/render"}, paths(ig.GetImporters("example.com/m/shapes")))
	assert.Equal(t, []string{"example.com/m/cmd", "example.com/m/render"},
		paths(ig.GetTransitiveImporters("example.com/m/shapes")))
	assert.Equal(t, []string{"example.com/m/render", "example.com/m/shapes"},
		paths(ig.GetTransitiveImports("example.com/m/cmd")))
	assert.Empty(t, ig.GetTransitiveImporters("example.com/m/other"))
	assert.Nil(t, ig.GetTransitiveImporters("example.com/m/missing"))
	assert.NotContains(t, ig.Nodes, "fmt", "external imports are not tracked")

	assert.True(t, ig.WouldCreateCycle("example.com/m/shapes", "example.com/m/cmd"))
	assert.False(t, ig.WouldCreateCycle("example.com/m/cmd", "example.com/m/other"))
}

func TestTypeGraph_Traversal(t *testing.T) {
	g := NewTypeGraph()
	bind := func(name string) types.Binding {
		return types.Binding{Kind: types.TypeBinding, Package: "p", Name: name}
	}
	for _, name := range []string{"Shape", "Named", "Rectangle", "Square", "Cube"} {
		g.AddType(bind(name), name == "Shape" || name == "Named")
	}
	g.AddEdge("p.Rectangle", "p.Shape", ImplementsEdge)
	g.AddEdge("p.Rectangle", "p.Named", ImplementsEdge)
	g.AddEdge("p.Square", "p.Rectangle", EmbedsEdge)
	g.AddEdge("p.Square", "p.Shape", ImplementsEdge)
	g.AddEdge("p.Cube", "p.Square", EmbedsEdge)
	g.AddEdge("p.Cube", "p.Square", EmbedsEdge) // duplicate
	g.AddEdge("p.Cube", "p.Missing", EmbedsEdge)

	keys := func(nodes []*TypeNode) []string {
		var out []string
		for _, n := range nodes {
			out = append(out, n.Key())
		}
		return out
	}

	require.Equal(t, 5, g.Len())
	assert.Len(t, g.Supertypes("p.Cube"), 1)
	assert.Equal(t, []string{"p.Square", "p.Rectangle", "p.Shape", "p.Named"}, keys(g.Ancestors("p.Cube")))
	assert.Equal(t, []string{"p.Rectangle", "p.Square", "p.Cube"}, keys(g.Descendants("p.Shape")))
	assert.Equal(t, "embeds", g.Subtypes("p.Rectangle")[0].Kind.String())

	n, ok := g.Node("p.Shape")
	require.True(t, ok)
	assert.True(t, n.IsInterface)
}
