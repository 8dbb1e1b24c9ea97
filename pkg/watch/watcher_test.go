package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher runs a watcher over dir until the test ends.
func startWatcher(t *testing.T, dir string, debounce time.Duration) <-chan []ChangeEvent {
	t.Helper()
	w, err := NewWatcher(dir, debounce, testLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
	})
	out := make(chan []ChangeEvent, 10)
	go func() { _ = w.Run(ctx, out) }()
	return out
}

func TestWatcher_ReportsGoFileChanges(t *testing.T) {
	testCases := []struct {
		name   string
		change func(dir string) error
		file   string
	}{
		{"create", func(dir string) error { return writeFile(dir, "new.go", "package p\n") }, "new.go"},
		{"modify", func(dir string) error { return writeFile(dir, "main.go", "package p\nfunc Hello() {}\n") }, "main.go"},
		{"delete", func(dir string) error { return os.Remove(filepath.Join(dir, "main.go")) }, "main.go"},
		{"go.mod", func(dir string) error { return writeFile(dir, "go.mod", "module example.com/p\n") }, "go.mod"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, writeFile(dir, "main.go", "package p\n"))
			out := startWatcher(t, dir, 50*time.Millisecond)

			require.NoError(t, tc.change(dir))
			batch := waitForBatch(t, out, 2*time.Second)
			assertContainsPath(t, batch, filepath.Join(dir, tc.file))
		})
	}
}

func TestWatcher_NonGoFileIgnored(t *testing.T) {
	dir := t.TempDir()
	out := startWatcher(t, dir, 50*time.Millisecond)

	require.NoError(t, writeFile(dir, "readme.md", "hello"))
	select {
	case batch := <-out:
		t.Fatalf("expected no events for .md file, got %d", len(batch))
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	out := startWatcher(t, dir, 50*time.Millisecond)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, writeFile(sub, "sub.go", "package sub\n"))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch := <-out:
			for _, ev := range batch {
				if ev.Path == filepath.Join(sub, "sub.go") {
					return
				}
			}
		case <-deadline:
			t.Fatal("no event for file in new directory")
		}
	}
}

func TestWatcher_DebounceCoalescesEvents(t *testing.T) {
	dir := t.TempDir()
	out := startWatcher(t, dir, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, writeFile(dir, "rapid.go", "package p\n// v"+string(rune('0'+i))+"\n"))
		time.Sleep(20 * time.Millisecond)
	}

	batch := waitForBatch(t, out, 2*time.Second)
	count := 0
	for _, ev := range batch {
		if filepath.Base(ev.Path) == "rapid.go" {
			count++
			assert.True(t, ev.Structural(), "first write created the file")
		}
	}
	assert.Equal(t, 1, count)
}

func TestWatcher_ContextCancellationStops(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, make(chan []ChangeEvent)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestChangeEvent_Structural(t *testing.T) {
	assert.False(t, ChangeEvent{Path: "/w/a.go", Op: fsnotify.Write}.Structural())
	assert.True(t, ChangeEvent{Path: "/w/a.go", Op: fsnotify.Remove}.Structural())
	assert.True(t, ChangeEvent{Path: "/w/go.mod", Op: fsnotify.Write}.Structural())
}

// --- helpers ---

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}

func waitForBatch(t *testing.T, ch <-chan []ChangeEvent, timeout time.Duration) []ChangeEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func assertContainsPath(t *testing.T, batch []ChangeEvent, path string) {
	t.Helper()
	for _, ev := range batch {
		if ev.Path == path {
			return
		}
	}
	t.Fatalf("batch does not contain %s: %v", path, batch)
}
