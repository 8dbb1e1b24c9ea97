package types

import (
	"go/ast"
	"go/token"
	gotypes "go/types"
	"sort"
)

// Workspace represents a complete Go module loaded for one refactoring session
type Workspace struct {
	RootPath     string
	Module       *Module
	Packages     map[string]*Package // filesystem dir -> Package
	ImportToPath map[string]string   // import path -> filesystem dir
	ParseErrors  map[string]error    // filesystem dir -> why the package was skipped
	FileSet      *token.FileSet
}

// Package represents a single Go package
type Package struct {
	Path       string // Filesystem directory (absolute)
	ImportPath string
	Name       string
	Dir        string
	Files      map[string]*File // base name -> File
	TestFiles  map[string]*File
	Imports    []string

	// Populated lazily by the type checker.
	TypesPkg   *gotypes.Package
	TypesInfo  *gotypes.Info
	TypeErrors []gotypes.Error
	checked    bool
}

// File represents a single Go source file
type File struct {
	Path    string
	Package *Package
	AST     *ast.File
	Content []byte
}

// Module represents Go module information
type Module struct {
	Path      string
	GoVersion string
	GoMod     string
}

// MarkChecked records that type checking ran for the package, even when it
// produced no usable result.
func (p *Package) MarkChecked() { p.checked = true }

// Checked reports whether type checking already ran for the package.
func (p *Package) Checked() bool { return p.checked }

// SortedFiles returns the non-test files of the package ordered by path.
func (p *Package) SortedFiles() []*File {
	files := make([]*File, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// FileByPath finds a non-test file of the package by its absolute path.
func (p *Package) FileByPath(path string) *File {
	for _, f := range p.Files {
		if f.Path == path {
			return f
		}
	}
	return nil
}

// SortedPackages returns the workspace packages ordered by import path.
func (ws *Workspace) SortedPackages() []*Package {
	pkgs := make([]*Package, 0, len(ws.Packages))
	for _, p := range ws.Packages {
		pkgs = append(pkgs, p)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].ImportPath < pkgs[j].ImportPath })
	return pkgs
}

// PackageByImportPath returns the workspace package with the given import path.
func (ws *Workspace) PackageByImportPath(importPath string) *Package {
	if dir, ok := ws.ImportToPath[importPath]; ok {
		return ws.Packages[dir]
	}
	return nil
}

// FindFile locates a parsed non-test file anywhere in the workspace.
func (ws *Workspace) FindFile(path string) *File {
	for _, p := range ws.Packages {
		if f := p.FileByPath(path); f != nil {
			return f
		}
	}
	return nil
}
