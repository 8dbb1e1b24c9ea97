package workingcopy

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_OpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	m := NewManager(testLogger())
	defer m.DiscardAll()

	first, err := m.Open(path)
	require.NoError(t, err)
	second, err := m.Open(filepath.Join(dir, ".", "a.go"))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, m.Scope(), first.Scope())
	assert.False(t, first.Dirty())

	script := change.NewEditScript(path)
	require.NoError(t, script.Add(change.Edit{Start: 8, End: 9, OldText: "a", NewText: "b"}))
	require.NoError(t, first.Apply(script))
	assert.True(t, second.Dirty())

	data, err := m.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package b\n", string(data))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package a\n", string(onDisk), "working copies never touch disk")

	_, err = m.Open(filepath.Join(dir, "missing.go"))
	var re *types.RefactorError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, types.FileSystemError, re.Type)
}

func TestManager_CreateListsFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(existing, []byte("package a\n"), 0o644))

	m := NewManager(testLogger())
	defer m.DiscardAll()

	created := filepath.Join(dir, "b.go")
	wc, err := m.Create(created, []byte("package a\n\ntype B struct{}\n"))
	require.NoError(t, err)
	assert.True(t, wc.Created())
	assert.Empty(t, wc.Original())

	files, err := m.GoFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{existing, created}, files)

	_, err = m.Create(created, nil)
	require.Error(t, err)
	_, err = m.Create(existing, nil)
	require.Error(t, err, "cannot create over a committed file")

	_, ok := m.Lookup(created)
	assert.True(t, ok)
	assert.Len(t, m.Copies(), 1)
}

func TestManager_DiscardAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	m := NewManager(testLogger())
	_, err := m.Create(filepath.Join(dir, "b.go"), []byte("package a\n"))
	require.NoError(t, err)
	_, err = m.Open(path)
	require.NoError(t, err)

	m.DiscardAll()
	m.DiscardAll()
	assert.True(t, m.Discarded())
	assert.Empty(t, m.Copies())

	_, err = m.Open(path)
	assert.ErrorIs(t, err, ErrDiscarded)
	_, err = m.ReadFile(path)
	assert.ErrorIs(t, err, ErrDiscarded)

	// A fresh transaction sees only committed state.
	other := NewManager(testLogger())
	defer other.DiscardAll()
	assert.NotEqual(t, m.Scope(), other.Scope())
	files, err := other.GoFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}
