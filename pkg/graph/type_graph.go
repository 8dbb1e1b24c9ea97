package graph

import (
	"sort"

	"github.com/mamaar/goextract/pkg/types"
)

// EdgeKind is the relationship between a subtype and its supertype.
type EdgeKind int

const (
	// EmbedsEdge: the struct embeds the supertype and inherits its members.
	EmbedsEdge EdgeKind = iota
	// ImplementsEdge: the type satisfies the interface.
	ImplementsEdge
)

// String returns the string representation of an EdgeKind
func (k EdgeKind) String() string {
	if k == EmbedsEdge {
		return "embeds"
	}
	return "implements"
}

// TypeNode is one named type of the workspace.
type TypeNode struct {
	Binding     types.Binding
	IsInterface bool
}

// Key returns the binding key of the node.
func (n *TypeNode) Key() string { return n.Binding.Key() }

// TypeEdge connects a subtype to one of its direct supertypes.
type TypeEdge struct {
	Sub   *TypeNode
	Super *TypeNode
	Kind  EdgeKind
}

// TypeGraph is the type hierarchy of a workspace as an explicit adjacency
// structure keyed by binding identity. It is built once and only read
// afterwards; all traversals are iterative.
type TypeGraph struct {
	nodes map[string]*TypeNode
	up    map[string][]TypeEdge
	down  map[string][]TypeEdge
}

// NewTypeGraph returns an empty graph.
func NewTypeGraph() *TypeGraph {
	return &TypeGraph{
		nodes: make(map[string]*TypeNode),
		up:    make(map[string][]TypeEdge),
		down:  make(map[string][]TypeEdge),
	}
}

// AddType registers a named type. Adding the same binding twice returns the
// existing node.
func (g *TypeGraph) AddType(b types.Binding, isInterface bool) *TypeNode {
	if n, ok := g.nodes[b.Key()]; ok {
		return n
	}
	n := &TypeNode{Binding: b, IsInterface: isInterface}
	g.nodes[b.Key()] = n
	return n
}

// AddEdge records that sub is a direct subtype of super. Both types must
// have been added; unknown keys are ignored.
func (g *TypeGraph) AddEdge(sub, super string, kind EdgeKind) {
	s, ok1 := g.nodes[sub]
	p, ok2 := g.nodes[super]
	if !ok1 || !ok2 || sub == super {
		return
	}
	for _, e := range g.up[sub] {
		if e.Super == p && e.Kind == kind {
			return
		}
	}
	e := TypeEdge{Sub: s, Super: p, Kind: kind}
	g.up[sub] = append(g.up[sub], e)
	g.down[super] = append(g.down[super], e)
}

// Node returns the node registered under key.
func (g *TypeGraph) Node(key string) (*TypeNode, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Len returns the number of types in the graph.
func (g *TypeGraph) Len() int { return len(g.nodes) }

// Supertypes returns the direct supertype edges of key.
func (g *TypeGraph) Supertypes(key string) []TypeEdge { return g.up[key] }

// Subtypes returns the direct subtype edges of key.
func (g *TypeGraph) Subtypes(key string) []TypeEdge { return g.down[key] }

// Ancestors returns every direct or indirect supertype of key, in
// breadth-first order (nearest first, ties by key).
func (g *TypeGraph) Ancestors(key string) []*TypeNode {
	return g.bfs(key, func(k string) []*TypeNode {
		edges := g.up[k]
		out := make([]*TypeNode, len(edges))
		for i, e := range edges {
			out[i] = e.Super
		}
		return out
	})
}

// Descendants returns every direct or indirect subtype of key, in
// breadth-first order.
func (g *TypeGraph) Descendants(key string) []*TypeNode {
	return g.bfs(key, func(k string) []*TypeNode {
		edges := g.down[k]
		out := make([]*TypeNode, len(edges))
		for i, e := range edges {
			out[i] = e.Sub
		}
		return out
	})
}

func (g *TypeGraph) bfs(start string, next func(string) []*TypeNode) []*TypeNode {
	if _, ok := g.nodes[start]; !ok {
		return nil
	}
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var result []*TypeNode
	for len(frontier) > 0 {
		var level []*TypeNode
		for _, k := range frontier {
			for _, n := range next(k) {
				if visited[n.Key()] {
					continue
				}
				visited[n.Key()] = true
				level = append(level, n)
			}
		}
		sort.Slice(level, func(i, j int) bool { return level[i].Key() < level[j].Key() })
		result = append(result, level...)
		frontier = frontier[:0]
		for _, n := range level {
			frontier = append(frontier, n.Key())
		}
	}
	return result
}
