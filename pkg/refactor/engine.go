package refactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
	"github.com/mamaar/goextract/pkg/workingcopy"
)

// RefactorEngine is the entry point of every refactoring. Each refactoring
// call is one transaction: it reads the committed workspace, stages its
// edits in working copies owned by the call, and returns a change that has
// not touched the disk. Independent transactions may run concurrently as
// long as they use different directories.
type RefactorEngine interface {
	// Workspace management
	LoadWorkspace(ctx context.Context, root string) (*analysis.Directory, error)

	// Refactoring operations
	ExtractStruct(ctx context.Context, dir *analysis.Directory, desc *types.ExtractStructDescriptor, names NameQueries) (*change.Composite, *types.RefactoringStatus, error)
	ExtractInterface(ctx context.Context, dir *analysis.Directory, desc *types.ExtractInterfaceDescriptor) (*change.Composite, *types.RefactoringStatus, error)
	Replay(ctx context.Context, dir *analysis.Directory, desc *types.PersistableDescriptor) (*change.Composite, *types.RefactoringStatus, error)

	// Queries
	FindReferences(ctx context.Context, dir *analysis.Directory, pkg, typeName, member string) ([]*types.SearchResultGroup, error)
	TypeHierarchy(ctx context.Context, dir *analysis.Directory, pkg, typeName string) (*TypeHierarchy, error)
}

// DefaultEngine implements the RefactorEngine interface
type DefaultEngine struct {
	logger    *slog.Logger
	validator *Validator
	config    *EngineConfig

	// afterTransaction observes the working copies of a finished transaction.
	afterTransaction func(*workingcopy.Manager)
}

// EngineConfig contains configuration options for the refactoring engine
type EngineConfig struct {
	// VerifyResult re-type-checks the affected packages with the change
	// applied in memory and reports new type errors.
	VerifyResult bool
	// ImporterMode selects how packages outside the workspace are imported.
	ImporterMode string
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		VerifyResult: true,
		ImporterMode: analysis.ImporterDefault,
	}
}

func CreateEngine(logger *slog.Logger) RefactorEngine {
	return CreateEngineWithConfig(logger, DefaultConfig())
}

func CreateEngineWithConfig(logger *slog.Logger, config *EngineConfig) RefactorEngine {
	return newEngine(logger, config)
}

func newEngine(logger *slog.Logger, config *EngineConfig) *DefaultEngine {
	if config == nil {
		config = DefaultConfig()
	}
	return &DefaultEngine{
		logger:    logger,
		validator: NewValidator(logger),
		config:    config,
	}
}

// LoadWorkspace parses the module at root from disk.
func (e *DefaultEngine) LoadWorkspace(ctx context.Context, root string) (*analysis.Directory, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	dir, err := analysis.NewDirectory(ctx, abs, analysis.DiskSource{}, e.logger, analysis.WithImporterMode(e.config.ImporterMode))
	if err != nil {
		return nil, fmt.Errorf("failed to parse workspace: %w", err)
	}
	e.logger.Info("workspace loaded", "root", abs, "packages", len(dir.Workspace().Packages))
	return dir, nil
}

// Replay runs the refactoring recorded in a persisted descriptor with the
// computed default for every name the descriptor leaves open.
func (e *DefaultEngine) Replay(ctx context.Context, dir *analysis.Directory, desc *types.PersistableDescriptor) (*change.Composite, *types.RefactoringStatus, error) {
	if mod := dir.Workspace().Module; mod != nil && desc.Project != "" && desc.Project != mod.Path {
		e.logger.Warn("replaying descriptor recorded in another module", "recorded", desc.Project, "module", mod.Path)
	}
	switch desc.ID {
	case types.ExtractStructID:
		d, err := desc.ExtractStruct()
		if err != nil {
			return nil, nil, err
		}
		return e.ExtractStruct(ctx, dir, d, DefaultNames{})
	case types.ExtractInterfaceID:
		d, err := desc.ExtractInterface()
		if err != nil {
			return nil, nil, err
		}
		return e.ExtractInterface(ctx, dir, d)
	default:
		return nil, nil, &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: fmt.Sprintf("unknown refactoring id %q", desc.ID),
		}
	}
}

// FindReferences returns the occurrences of a type, or of one of its
// members when member is set.
func (e *DefaultEngine) FindReferences(ctx context.Context, dir *analysis.Directory, pkg, typeName, member string) ([]*types.SearchResultGroup, error) {
	p, err := dir.Package(pkg)
	if err != nil {
		return nil, err
	}
	td, err := dir.LookupType(p, typeName)
	if err != nil {
		return nil, err
	}
	target := td.Binding
	if member != "" {
		members, err := dir.MembersOf(td.Binding)
		if err != nil {
			return nil, err
		}
		found := false
		for _, b := range members {
			if b.Name == member {
				target, found = b, true
				break
			}
		}
		if !found {
			return nil, &types.RefactorError{
				Type:    types.SymbolNotFound,
				Message: fmt.Sprintf("%s has no member %s", typeName, member),
			}
		}
	}
	return dir.FindReferences(ctx, []types.Binding{target}, dir.ReferenceScope(target))
}

// TypeHierarchy is the direct neighbourhood of a type in the workspace.
type TypeHierarchy struct {
	Type       types.Binding   `json:"type"`
	Supertypes []types.Binding `json:"supertypes"`
	Subtypes   []types.Binding `json:"subtypes"`
}

// TypeHierarchy lists the direct supertypes and subtypes of a type.
func (e *DefaultEngine) TypeHierarchy(ctx context.Context, dir *analysis.Directory, pkg, typeName string) (*TypeHierarchy, error) {
	p, err := dir.Package(pkg)
	if err != nil {
		return nil, err
	}
	td, err := dir.LookupType(p, typeName)
	if err != nil {
		return nil, err
	}
	supers, err := dir.SupertypesOf(ctx, td.Binding)
	if err != nil {
		return nil, err
	}
	subs, err := dir.SubtypesOf(ctx, td.Binding)
	if err != nil {
		return nil, err
	}
	return &TypeHierarchy{Type: td.Binding, Supertypes: supers, Subtypes: subs}, nil
}

// transaction opens the working copies of one refactoring. The returned
// function releases them and must be deferred.
func (e *DefaultEngine) transaction() (*workingcopy.Manager, func()) {
	manager := workingcopy.NewManager(e.logger)
	return manager, func() {
		manager.DiscardAll()
		if e.afterTransaction != nil {
			e.afterTransaction(manager)
		}
	}
}

// speculative parses the workspace again, reading staged files from the
// working copies.
func (e *DefaultEngine) speculative(ctx context.Context, dir *analysis.Directory, manager *workingcopy.Manager) (*analysis.Directory, error) {
	return analysis.NewDirectory(ctx, dir.Workspace().RootPath, manager, e.logger, analysis.WithImporter(dir.StdImporter()))
}

// verify stages the final content of every affected file and reports type
// errors that the committed workspace does not have.
func (e *DefaultEngine) verify(ctx context.Context, dir *analysis.Directory, manager *workingcopy.Manager, c *change.Composite) (*types.RefactoringStatus, error) {
	ctx, span := startSpan(ctx, "refactor.verify")
	defer span.End()

	status := types.NewStatus()
	contents, err := c.Contents(func(path string) ([]byte, error) {
		if f := dir.File(path); f != nil {
			return f.Content, nil
		}
		return os.ReadFile(path)
	})
	if err != nil {
		return nil, types.NewInvariantError("", "change does not apply to the committed workspace: %v", err)
	}

	dirs := make(map[string]bool)
	for path, content := range contents {
		dirs[filepath.Dir(path)] = true
		wc, ok := manager.Lookup(path)
		if !ok {
			if wc, err = manager.Open(path); err != nil {
				return nil, err
			}
		}
		wc.SetContents(content)
	}

	final, err := e.speculative(ctx, dir, manager)
	if err != nil {
		return nil, err
	}
	var pkgDirs []string
	for d := range dirs {
		pkgDirs = append(pkgDirs, d)
	}
	sort.Strings(pkgDirs)
	for _, d := range pkgDirs {
		after, ok := final.Workspace().Packages[d]
		if !ok {
			perr := final.Workspace().ParseErrors[d]
			if perr != nil && dir.Workspace().ParseErrors[d] == nil {
				msg, loc := parseFailure(perr)
				status.AddError("package does not parse after refactoring: "+msg, loc)
			}
			continue
		}
		before := make(map[string]int)
		if pkg, ok := dir.Workspace().Packages[d]; ok {
			for _, te := range dir.TypeErrors(pkg) {
				before[te.Msg]++
			}
		}
		for _, te := range final.TypeErrors(after) {
			if before[te.Msg] > 0 {
				before[te.Msg]--
				continue
			}
			pos := final.Workspace().FileSet.Position(te.Pos)
			status.AddError("type error after refactoring: "+te.Msg, types.Location{File: pos.Filename, Line: pos.Line, Column: pos.Column})
		}
	}
	return status, nil
}

// parseFailure splits a package parse error into a message and the position
// of the offending file.
func parseFailure(err error) (string, types.Location) {
	var re *types.RefactorError
	if errors.As(err, &re) {
		return re.Message, types.Location{File: re.File, Line: re.Line, Column: re.Column}
	}
	return err.Error(), types.Location{}
}

func countEdits(c *change.Composite) {
	for _, s := range c.Scripts() {
		for cat, n := range s.Categories() {
			editsTotal.WithLabelValues(string(cat)).Add(float64(n))
		}
	}
	if n := len(c.Creates()); n > 0 {
		editsTotal.WithLabelValues(string(change.CreateFile)).Add(float64(n))
	}
}

func (e *DefaultEngine) modulePath(dir *analysis.Directory) string {
	if mod := dir.Workspace().Module; mod != nil {
		return mod.Path
	}
	return ""
}
