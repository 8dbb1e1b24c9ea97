package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mamaar/goextract/internal/config"
	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/watch"
)

// MCPServer holds the shared state for the MCP tool handlers: the loaded
// workspace, its settings, the refactoring engine, and a filesystem watcher
// that drops the cached binding directory when files change.
//
// Tool calls are serialized: each refactoring opens its own working copies,
// but applying a change and reloading the directory must not interleave.
type MCPServer struct {
	mu        sync.Mutex
	engine    refactor.RefactorEngine
	engineCfg *refactor.EngineConfig
	cfg       *config.Config
	cache     *watch.DirectoryCache
	watcher   *watch.Watcher
	cancel    context.CancelFunc // stops watcher goroutines
	watch     bool
	debounce  time.Duration
	logger    *slog.Logger
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithEngineConfig overrides the engine settings of the workspace file.
func WithEngineConfig(cfg *refactor.EngineConfig) Option {
	return func(s *MCPServer) { s.engineCfg = cfg }
}

// WithWatch enables or disables the filesystem watcher.
func WithWatch(enabled bool) Option {
	return func(s *MCPServer) { s.watch = enabled }
}

// NewMCPServer creates a new MCPServer with the given logger.
func NewMCPServer(logger *slog.Logger, opts ...Option) *MCPServer {
	s := &MCPServer{
		cfg:      config.Default(),
		watch:    true,
		debounce: 200 * time.Millisecond,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = refactor.CreateEngineWithConfig(logger, s.engineOptions())
	return s
}

func (s *MCPServer) engineOptions() *refactor.EngineConfig {
	if s.engineCfg != nil {
		return s.engineCfg
	}
	return s.cfg.EngineOptions()
}

// LoadWorkspace loads (or reloads) the workspace at path and starts
// watching it.
func (s *MCPServer) LoadWorkspace(ctx context.Context, path string) (*analysis.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopWatcherLocked()

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	cfg, err := config.LoadWorkspace(root)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	s.cfg = cfg
	s.engine = refactor.CreateEngineWithConfig(s.logger, s.engineOptions())

	s.logger.Info("loading workspace", "path", root)
	cache := watch.NewDirectoryCache(root, s.engine.LoadWorkspace, s.logger)
	dir, err := cache.Directory(ctx)
	if err != nil {
		s.cache = nil
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	s.cache = cache

	if s.watch {
		s.startWatcherLocked(root)
	}
	return dir, nil
}

func (s *MCPServer) startWatcherLocked(root string) {
	w, err := watch.NewWatcher(root, s.debounce, s.logger)
	if err != nil {
		s.logger.Warn("watcher unavailable, workspace will not auto-update", "err", err)
		return
	}
	s.watcher = w

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	events := make(chan []watch.ChangeEvent, 4)
	go func() {
		if err := w.Run(watchCtx, events); err != nil && watchCtx.Err() == nil {
			s.logger.Error("watcher error", "err", err)
		}
	}()
	go s.cache.Follow(watchCtx, events)
}

func (s *MCPServer) stopWatcherLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
}

// session is the state a tool call works on while it holds the server lock.
type session struct {
	engine refactor.RefactorEngine
	cfg    *config.Config
	dir    *analysis.Directory
	cache  *watch.DirectoryCache
}

// acquire locks the server and returns the current workspace. The returned
// release function must be called when the tool call ends.
func (s *MCPServer) acquire(ctx context.Context) (*session, func(), error) {
	s.mu.Lock()
	if s.cache == nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("no workspace loaded, call load_workspace first")
	}
	dir, err := s.cache.Directory(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	return &session{engine: s.engine, cfg: s.cfg, dir: dir, cache: s.cache}, s.mu.Unlock, nil
}

// Close stops the watcher and releases resources.
func (s *MCPServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatcherLocked()
}
