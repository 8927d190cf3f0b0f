// Package dag orders jobs by their declared dependencies.
//
// Nodes remember insertion order; TopologicalSort breaks ties by it, so a
// hand-ordered job list is kept wherever dependencies allow.
package dag

import (
	"container/heap"
	"fmt"
)

// Node is one vertex.
type Node struct {
	ID   string
	Data any

	order int
}

// Graph is a directed graph; an edge parent->child means child depends on parent.
type Graph struct {
	nodes   map[string]*Node
	ids     []string
	edges   map[string][]string // parent -> children
	parents map[string][]string // child -> parents
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node, or updates its data when it already exists. The first
// insertion fixes its tie-break order.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data, order: len(g.ids)}
	g.ids = append(g.ids, id)
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge records that child depends on parent.
//
// Errors:
//   - Either node missing.
//   - parent == child.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}
	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the direct dependencies of id.
func (g *Graph) Parents(id string) []string { return g.parents[id] }

// Children returns the direct dependents of id.
func (g *Graph) Children(id string) []string { return g.edges[id] }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// HasCycle reports whether the graph has a cycle and returns one cycle path
// whose first and last elements are the same node.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	from := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, child := range g.edges[id] {
			if !visited[child] {
				from[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range g.ids {
		if !visited[id] && dfs(id) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns every node with dependencies first. Among nodes
// whose dependencies are all placed, the earliest inserted goes next.
//
// Errors:
//   - The graph has a cycle; the message names the cycle path.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if ok, path := g.HasCycle(); ok {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	indeg := make(map[string]int, len(g.ids))
	ready := &nodeHeap{}
	for _, id := range g.ids {
		indeg[id] = len(g.parents[id])
		if indeg[id] == 0 {
			heap.Push(ready, g.nodes[id])
		}
	}

	out := make([]*Node, 0, len(g.ids))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(*Node)
		out = append(out, n)
		for _, child := range g.edges[n.ID] {
			indeg[child]--
			if indeg[child] == 0 {
				heap.Push(ready, g.nodes[child])
			}
		}
	}
	return out, nil
}

// Ancestors returns every transitive dependency of id in insertion order.
func (g *Graph) Ancestors(id string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, p := range g.parents[n] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for _, n := range g.ids {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

type nodeHeap []*Node

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].order < h[j].order }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(*Node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
