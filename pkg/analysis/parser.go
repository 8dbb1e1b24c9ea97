package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/build"
	"go/importer"
	"go/parser"
	"go/scanner"
	"go/token"
	gotypes "go/types"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/mamaar/goextract/pkg/types"
)

// Importer modes for packages outside the workspace.
const (
	ImporterDefault = "default" // compiler export data, falling back to source
	ImporterSource  = "source"  // always type-check dependencies from source
)

// GoParser handles Go code parsing and type checking for one workspace load.
// A parser owns its FileSet; use a new parser for every ParseWorkspace call.
type GoParser struct {
	fileSet  *token.FileSet
	logger   *slog.Logger
	src      Source
	build    build.Context
	importer *workspaceImporter
	std      gotypes.Importer
	mode     string
}

// NewParser creates a parser reading files from src. A nil std importer is
// created on first use according to mode.
func NewParser(logger *slog.Logger, src Source, std gotypes.Importer, mode string) *GoParser {
	if src == nil {
		src = DiskSource{}
	}
	if mode == "" {
		mode = ImporterDefault
	}
	p := &GoParser{
		fileSet: token.NewFileSet(),
		logger:  logger,
		src:     src,
		std:     std,
		mode:    mode,
	}
	// Build constraints are evaluated against the same source the parser
	// reads from, so working-copy buffers are filtered like disk files.
	p.build = build.Default
	p.build.OpenFile = func(path string) (io.ReadCloser, error) {
		data, err := src.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return p
}

// FileSet returns the file set shared by every file of the workspace.
func (p *GoParser) FileSet() *token.FileSet { return p.fileSet }

// ParseFile parses a single Go file
func (p *GoParser) ParseFile(filename string) (*types.File, error) {
	content, err := p.src.ReadFile(filename)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to read file: %v", err),
			File:    filename,
			Cause:   err,
		}
	}

	astFile, err := parser.ParseFile(p.fileSet, filename, content, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		perr := &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse file: %v", err),
			File:    filename,
			Cause:   err,
		}
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			perr.Message = "failed to parse file: " + list[0].Msg
			perr.Line, perr.Column = list[0].Pos.Line, list[0].Pos.Column
		}
		return nil, perr
	}

	return &types.File{
		Path:    filename,
		AST:     astFile,
		Content: content,
	}, nil
}

// ParsePackage parses all Go files of a package directory that match the
// current build context.
func (p *GoParser) ParsePackage(dir string) (*types.Package, error) {
	paths, err := p.src.GoFiles(dir)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to list package: %v", err),
			File:    dir,
			Cause:   err,
		}
	}

	pkg := &types.Package{
		Path:      dir,
		Dir:       dir,
		Files:     make(map[string]*types.File),
		TestFiles: make(map[string]*types.File),
	}

	var tests []*types.File
	for _, path := range paths {
		if ok, err := p.build.MatchFile(dir, filepath.Base(path)); err != nil || !ok {
			continue
		}

		file, err := p.ParseFile(path)
		if err != nil {
			return nil, err
		}
		file.Package = pkg

		if strings.HasSuffix(path, "_test.go") {
			tests = append(tests, file)
			continue
		}

		name := file.AST.Name.Name
		if pkg.Name == "" {
			pkg.Name = name
		} else if name != pkg.Name {
			p.logger.Debug("skipping file of foreign package", "file", path, "package", name, "want", pkg.Name)
			continue
		}
		pkg.Files[filepath.Base(path)] = file

		for _, imp := range file.AST.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if !contains(pkg.Imports, importPath) {
				pkg.Imports = append(pkg.Imports, importPath)
			}
		}
	}

	if pkg.Name == "" {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: "no non-test Go files found in package",
			File:    dir,
		}
	}

	for _, f := range tests {
		name := f.AST.Name.Name
		if name == pkg.Name || name == pkg.Name+"_test" {
			pkg.TestFiles[filepath.Base(f.Path)] = f
		}
	}

	return pkg, nil
}

// ParseWorkspace parses an entire Go module rooted at rootPath.
// Package directories are discovered sequentially, then parsed in parallel
// with at most runtime.NumCPU goroutines. Packages that fail to parse are
// left out of the workspace; their errors are kept in Workspace.ParseErrors.
func (p *GoParser) ParseWorkspace(ctx context.Context, rootPath string) (*types.Workspace, error) {
	p.logger.Debug("parsing workspace", "path", rootPath)

	absRootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to get absolute path for workspace: %v", err),
			File:    rootPath,
			Cause:   err,
		}
	}

	workspace := &types.Workspace{
		RootPath:     absRootPath,
		Packages:     make(map[string]*types.Package),
		ImportToPath: make(map[string]string),
		ParseErrors:  make(map[string]error),
		FileSet:      p.fileSet,
	}

	goModPath := filepath.Join(absRootPath, "go.mod")
	modContent, err := p.src.ReadFile(goModPath)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("workspace has no readable go.mod: %v", err),
			File:    goModPath,
			Cause:   err,
		}
	}
	if workspace.Module, err = parseGoMod(goModPath, modContent); err != nil {
		return nil, err
	}

	// Phase 1: discover package directories
	var pkgDirs []string
	err = filepath.WalkDir(absRootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != absRootPath {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata" {
				return filepath.SkipDir
			}
			// Nested modules are separate workspaces.
			if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
				return filepath.SkipDir
			}
		}
		files, err := p.src.GoFiles(path)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			pkgDirs = append(pkgDirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to parse workspace: %v", err),
			File:    rootPath,
			Cause:   err,
		}
	}

	p.logger.Debug("discovered packages", "count", len(pkgDirs))

	// Phase 2: parse packages in parallel. The shared FileSet is safe for
	// concurrent use.
	results := make([]*types.Package, len(pkgDirs))
	failures := make([]error, len(pkgDirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, dir := range pkgDirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pkg, err := p.ParsePackage(dir)
			if err != nil {
				p.logger.Warn("failed to parse package", "dir", dir, "err", err)
				failures[i] = err
				return nil
			}
			results[i] = pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}

	for i, pkg := range results {
		if pkg == nil {
			if failures[i] != nil {
				workspace.ParseErrors[pkgDirs[i]] = failures[i]
			}
			continue
		}
		pkg.ImportPath = computeImportPath(workspace, pkg.Dir)
		workspace.Packages[pkg.Dir] = pkg
		workspace.ImportToPath[pkg.ImportPath] = pkg.Dir
	}

	p.logger.Debug("workspace parsed", "packages", len(workspace.Packages), "module", workspace.Module.Path)

	// One importer per workspace keeps type identities consistent across
	// all TypeCheckPackage calls.
	p.importer = &workspaceImporter{ws: workspace, parser: p}

	return workspace, nil
}

func parseGoMod(path string, content []byte) (*types.Module, error) {
	f, err := modfile.ParseLax(path, content, nil)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse go.mod: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	if f.Module == nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: "go.mod has no module directive",
			File:    path,
		}
	}
	module := &types.Module{Path: f.Module.Mod.Path, GoMod: string(content)}
	if f.Go != nil {
		module.GoVersion = f.Go.Version
	}
	return module, nil
}

// computeImportPath computes the Go import path for a package given its filesystem path
func computeImportPath(ws *types.Workspace, fsPath string) string {
	relPath, err := filepath.Rel(ws.RootPath, fsPath)
	if err != nil || relPath == "." {
		return ws.Module.Path
	}
	return ws.Module.Path + "/" + filepath.ToSlash(relPath)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// TypeCheckPackage runs go/types type-checking on the non-test files of a
// package. It runs at most once per package; results and type errors are
// stored on the package. Packages with errors keep their partial results.
func (p *GoParser) TypeCheckPackage(ws *types.Workspace, pkg *types.Package) {
	if pkg.Checked() {
		return
	}
	pkg.MarkChecked()

	var files []*ast.File
	for _, f := range pkg.SortedFiles() {
		files = append(files, f.AST)
	}

	info := newInfo()
	tpkg, errs := p.check(pkg.ImportPath, files, info)
	pkg.TypesPkg = tpkg
	pkg.TypesInfo = info
	pkg.TypeErrors = errs
	if len(errs) > 0 {
		p.logger.Debug("type errors", "package", pkg.ImportPath, "count", len(errs), "first", errs[0].Msg)
	}
}

// checkTests type-checks the package together with its in-package test
// files, and the external test package if one exists. The results are
// separate from the importable package.
func (p *GoParser) checkTests(ws *types.Workspace, pkg *types.Package) (inPkg, xtest *checkUnit) {
	var base, internal, external []*types.File
	base = pkg.SortedFiles()
	for _, f := range sortedFiles(pkg.TestFiles) {
		if f.AST.Name.Name == pkg.Name {
			internal = append(internal, f)
		} else {
			external = append(external, f)
		}
	}

	if len(internal) > 0 {
		files := append(append([]*types.File{}, base...), internal...)
		inPkg = p.checkUnit(pkg, pkg.ImportPath, files)
	}
	if len(external) > 0 {
		xtest = p.checkUnit(pkg, pkg.ImportPath+"_test", external)
	}
	return inPkg, xtest
}

func (p *GoParser) checkUnit(pkg *types.Package, path string, files []*types.File) *checkUnit {
	asts := make([]*ast.File, len(files))
	for i, f := range files {
		asts[i] = f.AST
	}
	info := newInfo()
	tpkg, errs := p.check(path, asts, info)
	return &checkUnit{pkg: pkg, files: files, info: info, tpkg: tpkg, errors: errs}
}

func (p *GoParser) check(path string, files []*ast.File, info *gotypes.Info) (*gotypes.Package, []gotypes.Error) {
	var errs []gotypes.Error
	conf := gotypes.Config{
		Importer: p.importer,
		Error: func(err error) {
			if terr, ok := err.(gotypes.Error); ok && !terr.Soft {
				errs = append(errs, terr)
			}
		},
	}
	// Errors are collected through conf.Error; Check returns the first one.
	tpkg, _ := conf.Check(path, p.fileSet, files, info)
	return tpkg, errs
}

func newInfo() *gotypes.Info {
	return &gotypes.Info{
		Types:      make(map[ast.Expr]gotypes.TypeAndValue),
		Defs:       make(map[*ast.Ident]gotypes.Object),
		Uses:       make(map[*ast.Ident]gotypes.Object),
		Selections: make(map[*ast.SelectorExpr]*gotypes.Selection),
	}
}

// stdImporter returns the importer for packages outside the workspace.
func (p *GoParser) stdImporter() gotypes.Importer {
	if p.std == nil {
		if p.mode == ImporterSource {
			p.std = importer.ForCompiler(token.NewFileSet(), "source", nil)
		} else {
			p.std = &fallbackImporter{
				primary: importer.Default(),
				lazy:    func() gotypes.Importer { return importer.ForCompiler(token.NewFileSet(), "source", nil) },
			}
		}
	}
	return p.std
}

// workspaceImporter implements go/types.Importer using workspace-local packages
// with fallback to the standard importer for everything else.
type workspaceImporter struct {
	ws     *types.Workspace
	parser *GoParser
}

func (imp *workspaceImporter) Import(path string) (*gotypes.Package, error) {
	if pkg := imp.ws.PackageByImportPath(path); pkg != nil {
		if !pkg.Checked() {
			imp.parser.TypeCheckPackage(imp.ws, pkg)
		}
		if pkg.TypesPkg == nil {
			return nil, fmt.Errorf("import cycle or unresolvable package %q", path)
		}
		return pkg.TypesPkg, nil
	}
	return imp.parser.stdImporter().Import(path)
}

// fallbackImporter tries compiler export data first and type-checks from
// source when no export data is available.
type fallbackImporter struct {
	primary  gotypes.Importer
	fallback gotypes.Importer
	lazy     func() gotypes.Importer
}

func (f *fallbackImporter) Import(path string) (*gotypes.Package, error) {
	pkg, err := f.primary.Import(path)
	if err == nil {
		return pkg, nil
	}
	if f.fallback == nil {
		f.fallback = f.lazy()
	}
	return f.fallback.Import(path)
}
