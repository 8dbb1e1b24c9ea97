package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
)

func writeModule(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, writeFile(root, "go.mod", "module example.com/m\n\ngo 1.22\n"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "p"), 0o755))
	require.NoError(t, writeFile(filepath.Join(root, "p"), "p.go", "package p\n\ntype T struct{ A int }\n"))
	return root
}

func diskLoader(ctx context.Context, root string) (*analysis.Directory, error) {
	return analysis.NewDirectory(ctx, root, analysis.DiskSource{}, testLogger(), analysis.WithImporterMode(analysis.ImporterSource))
}

func TestDirectoryCache_LoadsOnce(t *testing.T) {
	root := writeModule(t)
	cache := NewDirectoryCache(root, diskLoader, testLogger())

	first, err := cache.Directory(context.Background())
	require.NoError(t, err)
	second, err := cache.Directory(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Generation())
}

func TestDirectoryCache_ChangesForceReload(t *testing.T) {
	root := writeModule(t)
	cache := NewDirectoryCache(root, diskLoader, testLogger())
	first, err := cache.Directory(context.Background())
	require.NoError(t, err)

	path := filepath.Join(root, "p", "q.go")
	require.NoError(t, writeFile(filepath.Join(root, "p"), "q.go", "package p\n\ntype U struct{}\n"))
	cache.HandleChanges([]ChangeEvent{{Path: path, Op: fsnotify.Create}})
	assert.Equal(t, []string{path}, cache.Dirty())

	second, err := cache.Directory(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, cache.Generation())
	assert.Empty(t, cache.Dirty())

	pkg, err := second.Package("example.com/m/p")
	require.NoError(t, err)
	_, ok := second.Declares(pkg, "U")
	assert.True(t, ok)
}

func TestDirectoryCache_LoadErrorKeepsCacheEmpty(t *testing.T) {
	cache := NewDirectoryCache(filepath.Join(t.TempDir(), "missing"), diskLoader, testLogger())
	_, err := cache.Directory(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, cache.Generation())
}

func TestDirectoryCache_FollowsWatcher(t *testing.T) {
	root := writeModule(t)
	cache := NewDirectoryCache(root, diskLoader, testLogger())
	_, err := cache.Directory(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(root, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan []ChangeEvent, 4)
	go func() { _ = w.Run(ctx, events) }()
	go cache.Follow(ctx, events)

	require.NoError(t, writeFile(filepath.Join(root, "p"), "p.go", "package p\n\ntype T struct{ A, B int }\n"))
	assert.Eventually(t, func() bool { return len(cache.Dirty()) > 0 }, 3*time.Second, 20*time.Millisecond)
}
