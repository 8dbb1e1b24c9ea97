package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/types"
)

const shapesSrc = `package shapes

type Rectangle struct {
	Width, Height int
	Name          string
}

func (r *Rectangle) Area() int { return r.Width * r.Height }
`

const storeSrc = `package store

type Memory struct{ data map[string]string }

func (m *Memory) Get(k string) string { return m.data[k] }

func (m *Memory) Put(k, v string) { m.data[k] = v }
`

func writeWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"go.mod":           "module example.com/m\n\ngo 1.22\n",
		".goextract.yaml":  "engine:\n  importer: source\nlog:\n  level: error\n",
		"shapes/shapes.go": shapesSrc,
		"store/store.go":   storeSrc,
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := NewApp(&stdout, &stderr).Execute(context.Background(), args)
	return stdout.String(), err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "goextract version "+Version+"\n", out)
}

func TestExtractStruct_DryRunLeavesDisk(t *testing.T) {
	root := writeWorkspace(t)
	out, err := run(t, "--workspace", root, "--dry-run",
		"extract-struct", "shapes", "Rectangle", "--fields", "Width,Height", "--class", "Dimensions", "--field", "Dims")
	require.NoError(t, err)

	assert.Contains(t, out, "Dry run mode")
	assert.Contains(t, out, "shapes/shapes.go")
	assert.Equal(t, shapesSrc, readFile(t, filepath.Join(root, "shapes", "shapes.go")))
}

func TestExtractStruct_AppliesAndSavesDescriptor(t *testing.T) {
	root := writeWorkspace(t)
	descPath := filepath.Join(t.TempDir(), "extract.yaml")
	out, err := run(t, "--workspace", root, "--save-descriptor", descPath,
		"extract-struct", "shapes", "Rectangle", "--fields", "Width,Height", "--class", "Dimensions", "--field", "Dims")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 1 files")

	src := readFile(t, filepath.Join(root, "shapes", "shapes.go"))
	assert.Contains(t, src, "type Dimensions struct")
	assert.Contains(t, src, "r.Dims.Width")

	desc, err := types.LoadDescriptor(descPath)
	require.NoError(t, err)
	assert.Equal(t, types.ExtractStructID, desc.ID)
	assert.Equal(t, "Dimensions", desc.Attributes[types.AttrName])
}

func TestExtractStruct_FatalExitsWithStatusError(t *testing.T) {
	root := writeWorkspace(t)
	out, err := run(t, "--workspace", root, "extract-struct", "shapes", "Rectangle", "--fields", "Depth")
	require.Error(t, err)
	assert.True(t, IsStatusError(err))
	assert.Contains(t, out, "Rectangle has no field Depth")
	assert.Equal(t, shapesSrc, readFile(t, filepath.Join(root, "shapes", "shapes.go")))
}

func TestExtractInterface_JSON(t *testing.T) {
	root := writeWorkspace(t)
	out, err := run(t, "--workspace", root, "--json", "--dry-run",
		"extract-interface", "store", "Memory", "--name", "Store", "--methods", "Get,Put", "--assert")
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Applied)
	assert.Equal(t, []string{"store/store.go"}, res.Files)
	assert.Contains(t, res.Preview, "Store")
	require.NotNil(t, res.Descriptor)
	assert.Equal(t, types.ExtractInterfaceID, res.Descriptor.ID)
}

func TestReplay(t *testing.T) {
	recorded := writeWorkspace(t)
	descPath := filepath.Join(t.TempDir(), "iface.yaml")
	_, err := run(t, "--workspace", recorded, "--save-descriptor", descPath,
		"extract-interface", "store", "Memory", "--name", "Store", "--methods", "Get")
	require.NoError(t, err)

	fresh := writeWorkspace(t)
	_, err = run(t, "--workspace", fresh, "replay", descPath)
	require.NoError(t, err)
	assert.Equal(t,
		readFile(t, filepath.Join(recorded, "store", "store.go")),
		readFile(t, filepath.Join(fresh, "store", "store.go")))
}

func TestReferences(t *testing.T) {
	root := writeWorkspace(t)
	out, err := run(t, "--workspace", root, "references", "shapes", "Rectangle", "Width")
	require.NoError(t, err)
	assert.Contains(t, out, "shapes/shapes.go:4:2 declaration")
	assert.Contains(t, out, "read")
	assert.True(t, strings.HasSuffix(out, "2 references in 1 files\n"), out)
}

func TestHierarchy(t *testing.T) {
	root := writeWorkspace(t)
	out, err := run(t, "--workspace", root, "hierarchy", "store", "Memory")
	require.NoError(t, err)
	assert.Contains(t, out, "example.com/m/store.Memory")
	assert.Contains(t, out, "Supertypes (0):")
}

func TestParseFieldSelections(t *testing.T) {
	got, err := ParseFieldSelections([]string{"Width", " Height:H "})
	require.NoError(t, err)
	assert.Equal(t, []types.FieldSelection{
		{Name: "Width", Include: true},
		{Name: "Height", NewName: "H", Include: true},
	}, got)

	_, err = ParseFieldSelections([]string{":X"})
	assert.Error(t, err)
}

func TestMissingWorkspace(t *testing.T) {
	_, err := run(t, "--workspace", filepath.Join(t.TempDir(), "nope"), "hierarchy", "store", "Memory")
	require.Error(t, err)
	assert.False(t, IsStatusError(err))
}
