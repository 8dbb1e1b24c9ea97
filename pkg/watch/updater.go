package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mamaar/goextract/pkg/analysis"
)

// Loader parses the workspace at root.
type Loader func(ctx context.Context, root string) (*analysis.Directory, error)

// DirectoryCache holds the binding directory of one workspace and drops it
// when a watched file changes. The next Directory call reloads it.
type DirectoryCache struct {
	root   string
	load   Loader
	logger *slog.Logger

	mu         sync.Mutex
	dir        *analysis.Directory
	generation int
	dirty      map[string]bool
}

// NewDirectoryCache creates an empty cache for the workspace at root.
func NewDirectoryCache(root string, load Loader, logger *slog.Logger) *DirectoryCache {
	return &DirectoryCache{root: root, load: load, logger: logger}
}

// Root returns the workspace root of the cache.
func (c *DirectoryCache) Root() string { return c.root }

// Generation counts the loads performed so far.
func (c *DirectoryCache) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Directory returns the cached directory, loading it first when there is
// none or when files changed since the last load.
func (c *DirectoryCache) Directory(ctx context.Context) (*analysis.Directory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dir != nil {
		return c.dir, nil
	}

	start := time.Now()
	dir, err := c.load(ctx, c.root)
	if err != nil {
		return nil, err
	}
	c.dir = dir
	c.generation++
	c.logger.Info("workspace reloaded",
		"root", c.root,
		"generation", c.generation,
		"changed", len(c.dirty),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	c.dirty = nil
	return dir, nil
}

// Invalidate drops the cached directory.
func (c *DirectoryCache) Invalidate(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = nil
	if c.dirty == nil {
		c.dirty = make(map[string]bool)
	}
	for _, p := range paths {
		c.dirty[p] = true
	}
}

// Dirty returns the files changed since the last load, sorted.
func (c *DirectoryCache) Dirty() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.dirty))
	for p := range c.dirty {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HandleChanges invalidates the cache for a batch of watcher events.
func (c *DirectoryCache) HandleChanges(events []ChangeEvent) {
	if len(events) == 0 {
		return
	}
	byDir := make(map[string]int)
	paths := make([]string, 0, len(events))
	structural := false
	for _, ev := range events {
		byDir[filepath.Dir(ev.Path)]++
		paths = append(paths, ev.Path)
		structural = structural || ev.Structural()
	}
	c.Invalidate(paths...)
	c.logger.Debug("workspace changed",
		"dirs", len(byDir),
		"files", len(events),
		"structural", structural,
	)
}

// Follow feeds every batch from events into the cache until the channel
// closes or ctx ends.
func (c *DirectoryCache) Follow(ctx context.Context, events <-chan []ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			c.HandleChanges(batch)
		}
	}
}
