package engine

import (
	"maps"
	"slices"
	"strings"

	"github.com/leapstack-labs/querygraph/internal/dag"
	"github.com/leapstack-labs/querygraph/internal/lineage"
)

// producers maps table names to the query of a batch that produces them.
// A query is reachable under its full name and, when unambiguous, under the
// last dotted part of it.
type producers struct {
	full  map[string]bool
	short map[string][]string
}

func newProducers(reports []*Report) *producers {
	p := &producers{
		full:  make(map[string]bool, len(reports)),
		short: make(map[string][]string, len(reports)),
	}
	for _, r := range reports {
		p.full[r.Name] = true
		s := lastPart(r.Name)
		p.short[s] = append(p.short[s], r.Name)
	}
	return p
}

// lookup finds the query producing a base table, matching the canonical
// name first and its last part second.
func (p *producers) lookup(canonical string) (string, bool) {
	for _, name := range []string{canonical, lastPart(canonical)} {
		if p.full[name] {
			return name, true
		}
		if qs := p.short[name]; len(qs) == 1 {
			return qs[0], true
		}
	}
	return "", false
}

func lastPart(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// ProjectGraph links the queries of a batch: query A feeds query B when B
// reads a base table whose canonical name, or its last part, names A.
// Queries without a graph are still nodes.
func (b *BatchResult) ProjectGraph() *dag.Graph {
	g := dag.NewGraph()
	for _, r := range b.Reports {
		g.AddNode(r.Name)
	}

	p := newProducers(b.Reports)
	for _, r := range b.Reports {
		if r.Graph == nil {
			continue
		}
		for _, t := range r.Graph.Tables() {
			if t.Kind != lineage.KindBaseTable {
				continue
			}
			if name, ok := p.lookup(t.CanonicalName); ok && name != r.Name {
				_ = g.AddEdge(name, r.Name)
			}
		}
	}
	return g
}

// ExternalSources returns the base tables read by the batch that no query
// in it produces, sorted and deduplicated.
func (b *BatchResult) ExternalSources() []string {
	p := newProducers(b.Reports)

	seen := make(map[string]bool)
	for _, r := range b.Reports {
		if r.Graph == nil {
			continue
		}
		for _, t := range r.Graph.Tables() {
			if t.Kind != lineage.KindBaseTable {
				continue
			}
			if _, ok := p.lookup(t.CanonicalName); !ok {
				seen[t.CanonicalName] = true
			}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
