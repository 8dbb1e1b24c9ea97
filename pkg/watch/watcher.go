// Package watch keeps a loaded workspace in step with the files on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent is one filesystem change to a file that affects the parsed
// workspace.
type ChangeEvent struct {
	Path string
	Op   fsnotify.Op
}

// Structural reports whether the event can change the package layout:
// a created, removed or renamed file, or any change to go.mod.
func (e ChangeEvent) Structural() bool {
	if filepath.Base(e.Path) == "go.mod" {
		return true
	}
	return e.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

// Watcher watches a workspace recursively and emits debounced batches of
// relevant changes.
type Watcher struct {
	rootPath string
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a Watcher over rootPath. Hidden directories, vendor and
// testdata are skipped, matching the directories the parser ignores.
func NewWatcher(rootPath string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		rootPath: rootPath,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
	}
	if err := w.addDirs(rootPath); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata"
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.rootPath && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run reads fsnotify events until ctx is cancelled, sending each debounced
// batch to out. A path appears at most once per batch, carrying the union of
// its operations.
func (w *Watcher) Run(ctx context.Context, out chan<- []ChangeEvent) error {
	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				w.maybeAddDir(ev.Name)
			}
			if relevant(ev) {
				pending[ev.Name] |= ev.Op
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]ChangeEvent, 0, len(pending))
			for p, op := range pending {
				batch = append(batch, ChangeEvent{Path: p, Op: op})
			}
			pending = make(map[string]fsnotify.Op)

			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close shuts down the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	return strings.HasSuffix(base, ".go") || base == "go.mod"
}

// maybeAddDir starts watching a directory created after NewWatcher.
func (w *Watcher) maybeAddDir(path string) {
	if skipDir(filepath.Base(path)) {
		return
	}
	if err := w.addDirs(path); err != nil {
		w.logger.Debug("could not add to watch", "path", path, "err", err)
	}
}
