// Package dag provides directed graph operations over string keys.
// It supports cycle detection, deterministic topological sorting and
// upstream/downstream traversal.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrCycleDetected is matched by every *CycleError.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError reports the nodes that take part in at least one cycle.
// Nodes that are only downstream of a cycle are not included.
type CycleError struct {
	// Keys holds every cyclic node, sorted.
	Keys []string
	// Components holds each strongly connected component, each sorted.
	Components [][]string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Keys, ", "))
}

// Is makes errors.Is(err, ErrCycleDetected) succeed.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// Graph is a directed graph. An edge parent -> child means child depends
// on parent.
type Graph struct {
	order    []string            // insertion order
	nodes    map[string]struct{} // membership
	children map[string][]string // parent -> children (dependents)
	parents  map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]struct{}),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.order = append(g.order, id)
}

// HasNode reports whether id is a node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Self-loops are accepted and reported as cycles.
func (g *Graph) AddEdge(parentID, childID string) error {
	if !g.HasNode(parentID) {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if !g.HasNode(childID) {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if !slices.Contains(g.children[parentID], childID) {
		g.children[parentID] = append(g.children[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Parents returns the direct dependencies of a node in edge insertion order.
func (g *Graph) Parents(id string) []string {
	return slices.Clone(g.parents[id])
}

// Children returns the direct dependents of a node in edge insertion order.
func (g *Graph) Children(id string) []string {
	return slices.Clone(g.children[id])
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.order)
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.order)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.children {
		count += len(children)
	}
	return count
}

// TopologicalSort returns every node with dependencies before dependents.
// Among nodes that become eligible at the same time the lexicographically
// smallest is emitted first, so the result does not depend on insertion
// order. Returns a *CycleError if the graph is not acyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	var ready []string
	for _, id := range g.order {
		inDegree[id] = len(g.parents[id])
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, id)

		for _, child := range g.children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				i, _ := slices.BinarySearch(ready, child)
				ready = slices.Insert(ready, i, child)
			}
		}
	}

	if len(result) != len(g.order) {
		return nil, g.cycleError()
	}
	return result, nil
}

// ExecutionLevels groups nodes by depth. Level 0 holds nodes without
// dependencies; a node sits one level below its deepest dependency. Each
// level is sorted.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(sorted))
	var levels [][]string
	for _, id := range sorted {
		l := 0
		for _, parent := range g.parents[id] {
			if level[parent]+1 > l {
				l = level[parent] + 1
			}
		}
		level[id] = l
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}

	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Cycles returns the strongly connected components that contain a cycle:
// components with more than one node, or a single node with a self-loop.
// Components are sorted internally and by their first key.
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	for _, scc := range g.stronglyConnected() {
		if len(scc) > 1 || slices.Contains(g.children[scc[0]], scc[0]) {
			sort.Strings(scc)
			cycles = append(cycles, scc)
		}
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles
}

func (g *Graph) cycleError() *CycleError {
	components := g.Cycles()
	var keys []string
	for _, c := range components {
		keys = append(keys, c...)
	}
	sort.Strings(keys)
	return &CycleError{Keys: keys, Components: components}
}

// stronglyConnected runs Tarjan's algorithm over the graph.
func (g *Graph) stronglyConnected() [][]string {
	index := 0
	indices := make(map[string]int, len(g.order))
	lowlink := make(map[string]int, len(g.order))
	onStack := make(map[string]bool, len(g.order))
	var stack []string
	var result [][]string

	var connect func(id string)
	connect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, child := range g.children[id] {
			if _, seen := indices[child]; !seen {
				connect(child)
				lowlink[id] = min(lowlink[id], lowlink[child])
			} else if onStack[child] {
				lowlink[id] = min(lowlink[id], indices[child])
			}
		}

		if lowlink[id] == indices[id] {
			var scc []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				scc = append(scc, top)
				if top == id {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for _, id := range g.order {
		if _, seen := indices[id]; !seen {
			connect(id)
		}
	}
	return result
}

// Upstream returns every node the given node transitively depends on, sorted.
func (g *Graph) Upstream(id string) []string {
	return g.reach(id, g.parents)
}

// Downstream returns every node that transitively depends on the given
// node, sorted.
func (g *Graph) Downstream(id string) []string {
	return g.reach(id, g.children)
}

func (g *Graph) reach(id string, next map[string][]string) []string {
	seen := make(map[string]bool)

	var walk func(nodeID string)
	walk = func(nodeID string) {
		for _, n := range next[nodeID] {
			if !seen[n] {
				seen[n] = true
				walk(n)
			}
		}
	}
	walk(id)

	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// Roots returns nodes with no dependencies, sorted.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Leaves returns nodes with no dependents, sorted.
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, id := range g.order {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}
