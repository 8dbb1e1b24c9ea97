package refactor

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

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testModule = "module example.com/m\n\ngo 1.22\n"

func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if _, ok := files["go.mod"]; !ok {
		files["go.mod"] = testModule
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func testEngine() *DefaultEngine {
	return newEngine(testLogger(), &EngineConfig{VerifyResult: true, ImporterMode: analysis.ImporterSource})
}

func loadModule(t *testing.T, e *DefaultEngine, files map[string]string) (*analysis.Directory, string) {
	t.Helper()
	root := writeModule(t, files)
	dir, err := e.LoadWorkspace(context.Background(), root)
	require.NoError(t, err)
	return dir, root
}

// contentsOf returns the new content of every affected file, keyed by the
// path relative to root.
func contentsOf(t *testing.T, c *change.Composite, root string) map[string]string {
	t.Helper()
	contents, err := c.Contents(os.ReadFile)
	require.NoError(t, err)
	out := make(map[string]string, len(contents))
	for path, content := range contents {
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = string(content)
	}
	return out
}

// squash collapses whitespace so assertions do not depend on gofmt alignment.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func assertCode(t *testing.T, content, snippet string) {
	t.Helper()
	assert.Contains(t, squash(content), squash(snippet))
}

func assertNoCode(t *testing.T, content, snippet string) {
	t.Helper()
	assert.NotContains(t, squash(content), squash(snippet))
}

func TestCreateEngine(t *testing.T) {
	engine := CreateEngine(testLogger())
	require.NotNil(t, engine)

	de, ok := engine.(*DefaultEngine)
	require.True(t, ok, "CreateEngine should return a *DefaultEngine")
	assert.True(t, de.config.VerifyResult)
	assert.Equal(t, analysis.ImporterDefault, de.config.ImporterMode)
}

func TestCreateEngineWithConfig_NilUsesDefaults(t *testing.T) {
	de := CreateEngineWithConfig(testLogger(), nil).(*DefaultEngine)
	assert.Equal(t, DefaultConfig(), de.config)
}

func TestLoadWorkspace_MissingRoot(t *testing.T) {
	_, err := testEngine().LoadWorkspace(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

const hierarchySrc = `package zoo

type Animal interface {
	Name() string
}

type Dog struct{}

func (Dog) Name() string { return "dog" }

type Cat struct{}

func (*Cat) Name() string { return "cat" }

type Rock struct{}
`

func TestTypeHierarchy(t *testing.T) {
	e := testEngine()
	dir, _ := loadModule(t, e, map[string]string{"zoo/zoo.go": hierarchySrc})

	h, err := e.TypeHierarchy(context.Background(), dir, "example.com/m/zoo", "Animal")
	require.NoError(t, err)
	var subs []string
	for _, b := range h.Subtypes {
		subs = append(subs, b.Name)
	}
	assert.ElementsMatch(t, []string{"Dog", "Cat"}, subs)

	h, err = e.TypeHierarchy(context.Background(), dir, "example.com/m/zoo", "Dog")
	require.NoError(t, err)
	require.Len(t, h.Supertypes, 1)
	assert.Equal(t, "Animal", h.Supertypes[0].Name)

	_, err = e.TypeHierarchy(context.Background(), dir, "example.com/m/zoo", "Missing")
	require.Error(t, err)
}

func TestFindReferences_Member(t *testing.T) {
	e := testEngine()
	dir, _ := loadModule(t, e, map[string]string{"shapes/shapes.go": rectangleSrc})

	groups, err := e.FindReferences(context.Background(), dir, "example.com/m/shapes", "Rectangle", "Width")
	require.NoError(t, err)
	require.Len(t, groups, 1)

	kinds := make(map[types.OccurrenceKind]int)
	for _, occ := range groups[0].Occurrences {
		kinds[occ.Kind]++
	}
	assert.Equal(t, 1, kinds[types.DeclarationSite])
	assert.Equal(t, 1, kinds[types.InitializerAccess])
	assert.Equal(t, 1, kinds[types.WriteAccess])
	assert.Equal(t, 1, kinds[types.ReadAccess])

	_, err = e.FindReferences(context.Background(), dir, "example.com/m/shapes", "Rectangle", "Depth")
	var re *types.RefactorError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, types.SymbolNotFound, re.Type)
}

func TestReplay_UnknownID(t *testing.T) {
	e := testEngine()
	dir, _ := loadModule(t, e, map[string]string{"shapes/shapes.go": rectangleSrc})

	_, _, err := e.Replay(context.Background(), dir, &types.PersistableDescriptor{ID: "other.rename"})
	var re *types.RefactorError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, types.InvalidOperation, re.Type)
}

func TestOutcomeOf(t *testing.T) {
	warn := types.NewStatus()
	warn.AddWarning("w")
	fatal := types.FatalStatus("f")

	assert.Equal(t, "ok", outcomeOf(types.NewStatus(), nil))
	assert.Equal(t, "warning", outcomeOf(warn, nil))
	assert.Equal(t, "fatal", outcomeOf(fatal, nil))
	assert.Equal(t, "cancelled", outcomeOf(types.CancelledStatus(), nil))
	assert.Equal(t, "failed", outcomeOf(nil, assert.AnError))
}

func insertComposite(t *testing.T, path string, at int, text string) *change.Composite {
	t.Helper()
	script := change.NewEditScript(path)
	require.NoError(t, script.Add(change.Edit{Start: at, End: at, NewText: text, Category: change.AddType}))
	asm := change.NewAssembler()
	require.NoError(t, asm.Add(script))
	return asm.Build("insert", nil, testLogger())
}

func TestVerify_ReportsUnparsableResult(t *testing.T) {
	e := testEngine()
	dir, root := loadModule(t, e, map[string]string{
		"shapes/shapes.go": rectangleSrc,
		"render/render.go": renderSrc,
	})
	path := filepath.Join(root, "shapes", "shapes.go")

	manager, done := e.transaction()
	defer done()
	status, err := e.verify(context.Background(), dir, manager, insertComposite(t, path, len(rectangleSrc), "\nfunc {\n"))
	require.NoError(t, err)
	require.True(t, status.HasError(), status.String())

	entries := status.EntriesWith(types.SeverityError)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "package does not parse after refactoring")
	assert.Equal(t, path, entries[0].File)
	assert.Positive(t, entries[0].Line)
}

func TestVerify_AcceptsValidResult(t *testing.T) {
	e := testEngine()
	dir, root := loadModule(t, e, map[string]string{"shapes/shapes.go": rectangleSrc})
	path := filepath.Join(root, "shapes", "shapes.go")

	manager, done := e.transaction()
	defer done()
	status, err := e.verify(context.Background(), dir, manager, insertComposite(t, path, len(rectangleSrc), "\nfunc Unit() int { return 1 }\n"))
	require.NoError(t, err)
	assert.False(t, status.HasError(), status.String())
}
