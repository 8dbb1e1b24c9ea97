// Package workingcopy holds the speculative file buffers of one refactoring
// transaction. Buffers are never written to disk; they are served to the
// parser through the analysis.Source interface.
package workingcopy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
)

// ErrDiscarded is returned by every operation on a manager after DiscardAll.
var ErrDiscarded = errors.New("working copies already discarded")

// WorkingCopy is the speculative buffer of one file.
type WorkingCopy struct {
	path     string
	scope    string
	original []byte
	buf      []byte
	created  bool
}

// Path returns the absolute path of the file.
func (wc *WorkingCopy) Path() string { return wc.path }

// Scope returns the transaction key that owns the copy.
func (wc *WorkingCopy) Scope() string { return wc.scope }

// Contents returns the current speculative content.
func (wc *WorkingCopy) Contents() []byte { return wc.buf }

// Original returns the committed content the copy was opened from. It is
// empty for created files.
func (wc *WorkingCopy) Original() []byte { return wc.original }

// Created reports whether the file does not exist on disk.
func (wc *WorkingCopy) Created() bool { return wc.created }

// Dirty reports whether the buffer differs from the committed content.
func (wc *WorkingCopy) Dirty() bool { return wc.created || string(wc.buf) != string(wc.original) }

// Apply replaces the buffer with the result of the edit script. The script
// offsets refer to the current buffer.
func (wc *WorkingCopy) Apply(script *change.EditScript) error {
	out, err := script.Apply(wc.buf)
	if err != nil {
		return fmt.Errorf("apply edits to working copy %s: %w", wc.path, err)
	}
	wc.buf = out
	return nil
}

// SetContents replaces the whole buffer.
func (wc *WorkingCopy) SetContents(content []byte) {
	wc.buf = append([]byte(nil), content...)
}

// Manager owns every working copy of one transaction. Copies are keyed by
// file path; the transaction key keeps managers of concurrent refactorings
// apart. A Manager is an analysis.Source: reads of opened files return the
// speculative buffer, everything else falls through to disk.
type Manager struct {
	scope  string
	logger *slog.Logger
	disk   analysis.DiskSource

	mu        sync.Mutex
	copies    map[string]*WorkingCopy
	discarded bool
}

// NewManager creates a manager with a fresh transaction key.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		scope:  uuid.NewString(),
		logger: logger,
		copies: make(map[string]*WorkingCopy),
	}
}

// Scope returns the transaction key.
func (m *Manager) Scope() string { return m.scope }

// Open returns the working copy of path, creating it from the committed
// content on first use. Opening the same path again returns the same copy.
func (m *Manager) Open(path string) (*WorkingCopy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discarded {
		return nil, ErrDiscarded
	}
	path = filepath.Clean(path)
	if wc, ok := m.copies[path]; ok {
		return wc, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to open working copy: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	wc := &WorkingCopy{path: path, scope: m.scope, original: content, buf: append([]byte(nil), content...)}
	m.copies[path] = wc
	m.logger.Debug("opened working copy", "file", path, "scope", m.scope)
	return wc, nil
}

// Create registers a new file that does not exist on disk yet.
func (m *Manager) Create(path string, content []byte) (*WorkingCopy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discarded {
		return nil, ErrDiscarded
	}
	path = filepath.Clean(path)
	if _, ok := m.copies[path]; ok {
		return nil, &types.RefactorError{
			Type:    types.NameConflict,
			Message: "file already has a working copy",
			File:    path,
		}
	}
	if _, err := os.Stat(path); err == nil {
		return nil, &types.RefactorError{
			Type:    types.NameConflict,
			Message: "file already exists",
			File:    path,
		}
	}
	wc := &WorkingCopy{path: path, scope: m.scope, buf: append([]byte(nil), content...), created: true}
	m.copies[path] = wc
	m.logger.Debug("created working copy", "file", path, "scope", m.scope)
	return wc, nil
}

// Lookup returns the working copy of path if one is open.
func (m *Manager) Lookup(path string) (*WorkingCopy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wc, ok := m.copies[filepath.Clean(path)]
	return wc, ok
}

// Copies returns the open working copies sorted by path.
func (m *Manager) Copies() []*WorkingCopy {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*WorkingCopy, 0, len(m.copies))
	for _, wc := range m.copies {
		out = append(out, wc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// ReadFile implements analysis.Source.
func (m *Manager) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	if m.discarded {
		m.mu.Unlock()
		return nil, ErrDiscarded
	}
	wc, ok := m.copies[filepath.Clean(path)]
	m.mu.Unlock()
	if ok {
		return wc.buf, nil
	}
	return m.disk.ReadFile(path)
}

// GoFiles implements analysis.Source. Created files are listed alongside
// the files on disk.
func (m *Manager) GoFiles(dir string) ([]string, error) {
	files, err := m.disk.GoFiles(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discarded {
		return nil, ErrDiscarded
	}
	dir = filepath.Clean(dir)
	for path, wc := range m.copies {
		if wc.created && filepath.Dir(path) == dir && strings.HasSuffix(path, ".go") {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// DiscardAll drops every buffer. It is safe to call more than once and is
// meant to be deferred right after NewManager.
func (m *Manager) DiscardAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discarded {
		return
	}
	m.logger.Debug("discarding working copies", "scope", m.scope, "count", len(m.copies))
	m.copies = make(map[string]*WorkingCopy)
	m.discarded = true
}

// Discarded reports whether DiscardAll ran.
func (m *Manager) Discarded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discarded
}
