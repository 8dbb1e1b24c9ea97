package refactor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// loadFixture copies testdata/<name> to a temporary directory and loads it.
func loadFixture(t *testing.T, e *DefaultEngine, name string) (*analysis.Directory, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.CopyFS(root, os.DirFS(filepath.Join("testdata", name))))
	dir, err := e.LoadWorkspace(context.Background(), root)
	require.NoError(t, err)
	return dir, root
}

func assertCompiles(t *testing.T, e *DefaultEngine, root string) {
	t.Helper()
	dir, err := e.LoadWorkspace(context.Background(), root)
	require.NoError(t, err)
	for _, pkg := range dir.Workspace().SortedPackages() {
		assert.Empty(t, dir.TypeErrors(pkg), "package %s", pkg.ImportPath)
	}
}

func TestMultiPackage_FixtureCompiles(t *testing.T) {
	e := testEngine()
	_, root := loadFixture(t, e, "multipackage")
	assertCompiles(t, e, root)
}

func TestMultiPackage_ExtractStructToOwnFile(t *testing.T) {
	e := testEngine()
	dir, root := loadFixture(t, e, "multipackage")

	c, status, err := e.ExtractStruct(context.Background(), dir, &types.ExtractStructDescriptor{
		Package:         "pkg/client",
		Type:            "Client",
		ClassName:       "Endpoint",
		Fields:          []types.FieldSelection{{Name: "host", Include: true}, {Name: "port", Include: true}},
		CreateAccessors: true,
		CreateTopLevel:  true,
	}, nil)
	require.NoError(t, err)
	require.False(t, status.HasError(), status.String())

	out := contentsOf(t, c, root)
	require.Contains(t, out, "pkg/client/endpoint.go")
	assertCode(t, out["pkg/client/endpoint.go"], "package client")
	assertCode(t, out["pkg/client/endpoint.go"], "type Endpoint struct { host string port int }")
	assertCode(t, out["pkg/client/client.go"], "type Client struct { endpoint Endpoint }")

	require.NoError(t, c.Apply())
	assertCompiles(t, e, root)
}

func TestMultiPackage_ExtractInterfaceAcrossPackages(t *testing.T) {
	e := testEngine()
	dir, root := loadFixture(t, e, "multipackage")

	c, status, err := e.ExtractInterface(context.Background(), dir, &types.ExtractInterfaceDescriptor{
		Package:       "example.com/multipackage/pkg/server",
		Type:          "Server",
		InterfaceName: "Lifecycle",
		Methods:       []string{"Start", "Stop"},
		FileName:      "lifecycle.go",
		AddAssertion:  true,
	})
	require.NoError(t, err)
	require.False(t, status.HasError(), status.String())

	// Client has Connect but not Start and Stop.
	for _, entry := range status.EntriesWith(types.SeverityInfo) {
		assert.NotContains(t, entry.Message, "Client")
	}

	out := contentsOf(t, c, root)
	created := out["pkg/server/lifecycle.go"]
	assertCode(t, created, "type Lifecycle interface { // Start starts the server Start() error // Stop stops the server Stop() error }")
	assertNoCode(t, created, "import")
	assertCode(t, created, "var _ Lifecycle = (*Server)(nil)")

	require.NoError(t, c.Apply())
	assertCompiles(t, e, root)
}
