package graph

import (
	"sort"

	"github.com/mamaar/goextract/pkg/types"
)

// ImportGraph represents import relationships between the packages of one
// workspace, keyed by import path. Imports of packages outside the workspace
// are not tracked.
type ImportGraph struct {
	Nodes map[string]*ImportNode // import path -> node
}

// ImportNode represents a single workspace package in the dependency graph
type ImportNode struct {
	Path       string
	Package    *types.Package
	ImportedBy []*ImportNode
	Imports    []*ImportNode
}

// NewImportGraph creates an import graph over the packages of ws.
func NewImportGraph(ws *types.Workspace) *ImportGraph {
	ig := &ImportGraph{Nodes: make(map[string]*ImportNode)}
	for _, pkg := range ws.SortedPackages() {
		ig.AddPackage(pkg)
	}
	for _, pkg := range ws.SortedPackages() {
		for _, imp := range pkg.Imports {
			if _, ok := ws.ImportToPath[imp]; ok {
				ig.AddImport(pkg.ImportPath, imp)
			}
		}
		// External test packages (package foo_test) still depend on foo.
		for _, f := range pkg.TestFiles {
			for _, spec := range f.AST.Imports {
				imp := importPathOf(spec.Path.Value)
				if _, ok := ws.ImportToPath[imp]; ok && imp != pkg.ImportPath {
					ig.AddImport(pkg.ImportPath, imp)
				}
			}
		}
	}
	return ig
}

// AddPackage adds a package node to the graph
func (ig *ImportGraph) AddPackage(pkg *types.Package) *ImportNode {
	node := ig.getOrCreateNode(pkg.ImportPath)
	node.Package = pkg
	return node
}

// AddImport adds an import relationship between two packages
func (ig *ImportGraph) AddImport(from, to string) {
	fromNode := ig.getOrCreateNode(from)
	toNode := ig.getOrCreateNode(to)

	for _, existing := range fromNode.Imports {
		if existing == toNode {
			return
		}
	}
	fromNode.Imports = append(fromNode.Imports, toNode)
	toNode.ImportedBy = append(toNode.ImportedBy, fromNode)
}

// GetDirectImports returns direct imports of a package
func (ig *ImportGraph) GetDirectImports(pkgPath string) []*ImportNode {
	if node, exists := ig.Nodes[pkgPath]; exists {
		return node.Imports
	}
	return nil
}

// GetImporters returns packages that import the given package
func (ig *ImportGraph) GetImporters(pkgPath string) []*ImportNode {
	if node, exists := ig.Nodes[pkgPath]; exists {
		return node.ImportedBy
	}
	return nil
}

// GetTransitiveImporters returns every package that imports pkgPath directly
// or indirectly, sorted by import path. pkgPath itself is not included.
func (ig *ImportGraph) GetTransitiveImporters(pkgPath string) []*ImportNode {
	return ig.walk(pkgPath, func(n *ImportNode) []*ImportNode { return n.ImportedBy })
}

// GetTransitiveImports returns all transitive workspace imports of a package
func (ig *ImportGraph) GetTransitiveImports(pkgPath string) []*ImportNode {
	return ig.walk(pkgPath, func(n *ImportNode) []*ImportNode { return n.Imports })
}

// WouldCreateCycle checks if adding an import would create a cycle
func (ig *ImportGraph) WouldCreateCycle(from, to string) bool {
	if from == to {
		return true
	}
	for _, imp := range ig.GetTransitiveImports(to) {
		if imp.Path == from {
			return true
		}
	}
	return false
}

func (ig *ImportGraph) walk(start string, next func(*ImportNode) []*ImportNode) []*ImportNode {
	root, ok := ig.Nodes[start]
	if !ok {
		return nil
	}
	visited := map[string]bool{start: true}
	queue := []*ImportNode{root}
	var result []*ImportNode
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range next(n) {
			if visited[m.Path] {
				continue
			}
			visited[m.Path] = true
			result = append(result, m)
			queue = append(queue, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

func (ig *ImportGraph) getOrCreateNode(path string) *ImportNode {
	if node, exists := ig.Nodes[path]; exists {
		return node
	}
	node := &ImportNode{Path: path}
	ig.Nodes[path] = node
	return node
}

func importPathOf(lit string) string {
	if len(lit) >= 2 {
		return lit[1 : len(lit)-1]
	}
	return lit
}
