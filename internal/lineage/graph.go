package lineage

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/querygraph/internal/dag"
)

// Graph is the dependency graph of one query. It is built once by Build
// and read-only afterwards; accessors return copies.
type Graph struct {
	resultKey   string
	tables      map[string]TableEntity
	tableOrder  []string
	columns     []ColumnLineage
	edges       []Edge
	edgeSet     map[Edge]struct{}
	diagnostics []Diagnostic
}

func newGraph(resultKey string) *Graph {
	return &Graph{
		resultKey: resultKey,
		tables:    make(map[string]TableEntity),
		edgeSet:   make(map[Edge]struct{}),
	}
}

// ---------- Construction ----------

// register adds e under its preferred key e.Key and returns the key it was
// stored under. An identical base table reuses the existing key.
func (g *Graph) register(e TableEntity, strategy KeyStrategy, path string) string {
	key := e.Key
	existing, taken := g.tables[key]
	reserved := key == g.resultKey && e.Kind != KindResult

	if taken && sameEntity(existing, e) {
		return key
	}
	if !reserved && (!taken || strategy == KeysFlat) {
		g.put(e)
		return key
	}

	prefix := path
	if prefix == "" {
		prefix = g.resultKey
	}
	candidate := prefix + "/" + key
	for n := 2; g.has(candidate); n++ {
		candidate = fmt.Sprintf("%s/%s#%d", prefix, key, n)
	}
	e.Key = candidate
	g.put(e)
	return candidate
}

func sameEntity(a, b TableEntity) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBaseTable:
		return a.CanonicalName == b.CanonicalName && a.Alias == b.Alias
	case KindResult:
		return true
	}
	return false
}

func (g *Graph) put(e TableEntity) {
	if !g.has(e.Key) {
		g.tableOrder = append(g.tableOrder, e.Key)
	}
	g.tables[e.Key] = e
}

func (g *Graph) has(key string) bool {
	_, ok := g.tables[key]
	return ok
}

func (g *Graph) addEdge(producer, consumer string) {
	e := Edge{Producer: producer, Consumer: consumer}
	if _, dup := g.edgeSet[e]; dup {
		return
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
}

func (g *Graph) addColumn(c ColumnLineage) {
	g.columns = append(g.columns, c)
}

func (g *Graph) addDiagnostic(d Diagnostic) {
	g.diagnostics = append(g.diagnostics, d)
}

// checkEdges reports every edge endpoint that is not a registered key.
func (g *Graph) checkEdges() {
	for _, e := range g.edges {
		for _, key := range []string{e.Producer, e.Consumer} {
			if !g.has(key) {
				g.addDiagnostic(Diagnostic{
					Kind:    UnresolvedReference,
					Context: e.Consumer,
					Subject: key,
					Message: fmt.Sprintf("edge %s -> %s refers to unknown table %q", e.Producer, e.Consumer, key),
				})
			}
		}
	}
}

// ---------- Accessors ----------

// ResultKey returns the key of the result entity.
func (g *Graph) ResultKey() string {
	return g.resultKey
}

// Tables returns every entity in registration order.
func (g *Graph) Tables() []TableEntity {
	out := make([]TableEntity, 0, len(g.tableOrder))
	for _, key := range g.tableOrder {
		out = append(out, g.tables[key])
	}
	return out
}

// Table returns the entity registered under key.
func (g *Graph) Table(key string) (TableEntity, bool) {
	e, ok := g.tables[key]
	return e, ok
}

// Keys returns every registry key in registration order.
func (g *Graph) Keys() []string {
	return slices.Clone(g.tableOrder)
}

// Columns returns every column record in insertion order.
func (g *Graph) Columns() []ColumnLineage {
	out := make([]ColumnLineage, len(g.columns))
	for i, c := range g.columns {
		out[i] = cloneColumn(c)
	}
	return out
}

// ColumnsFor returns the column records of one context.
func (g *Graph) ColumnsFor(context string) []ColumnLineage {
	var out []ColumnLineage
	for _, c := range g.columns {
		if c.Context == context {
			out = append(out, cloneColumn(c))
		}
	}
	return out
}

func cloneColumn(c ColumnLineage) ColumnLineage {
	c.Dependencies = slices.Clone(c.Dependencies)
	c.Unresolved = slices.Clone(c.Unresolved)
	return c
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Diagnostics returns the irregularities recorded during Build.
func (g *Graph) Diagnostics() []Diagnostic {
	return slices.Clone(g.diagnostics)
}

// DiagnosticsOf returns the diagnostics of one kind.
func (g *Graph) DiagnosticsOf(kind DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range g.diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// ---------- Algorithms ----------

// dagView returns the graph over registered keys. Edges with an unknown
// endpoint have been reported as diagnostics and are left out.
func (g *Graph) dagView() *dag.Graph {
	d := dag.NewGraph()
	for _, key := range g.tableOrder {
		d.AddNode(key)
	}
	for _, e := range g.edges {
		if g.has(e.Producer) && g.has(e.Consumer) {
			_ = d.AddEdge(e.Producer, e.Consumer)
		}
	}
	return d
}

// TopologicalOrder returns every table key with producers before
// consumers. Ties are broken lexicographically. On a cyclic graph it
// returns a *CycleError naming exactly the keys on a cycle.
func (g *Graph) TopologicalOrder() ([]string, error) {
	return g.dagView().TopologicalSort()
}

// ExecutionLevels groups keys into levels whose members only depend on
// earlier levels.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	return g.dagView().ExecutionLevels()
}

// Cycles returns each group of keys that depend on each other.
func (g *Graph) Cycles() [][]string {
	return g.dagView().Cycles()
}

// IncomingDependencies returns the direct producers of key in edge order.
func (g *Graph) IncomingDependencies(key string) []TableEntity {
	var out []TableEntity
	for _, e := range g.edges {
		if e.Consumer != key {
			continue
		}
		if t, ok := g.tables[e.Producer]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Dependents returns the direct consumers of key in edge order.
func (g *Graph) Dependents(key string) []TableEntity {
	var out []TableEntity
	for _, e := range g.edges {
		if e.Producer != key {
			continue
		}
		if t, ok := g.tables[e.Consumer]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Upstream returns every key that key transitively depends on, sorted.
func (g *Graph) Upstream(key string) []string {
	return g.dagView().Upstream(key)
}

// Downstream returns every key that transitively depends on key, sorted.
func (g *Graph) Downstream(key string) []string {
	return g.dagView().Downstream(key)
}
