package output

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/lineage"
	"github.com/leapstack-labs/querygraph/internal/state"
)

// ErrUnknownKey is returned by FromDeps for a key that is not in the graph.
var ErrUnknownKey = errors.New("unknown key")

// FromReport converts an analysis report to its structured form.
func FromReport(r *engine.Report) ReportOutput {
	out := ReportOutput{
		Name:       r.Name,
		FilePath:   r.FilePath,
		Hash:       r.Hash,
		Status:     r.Status(),
		Order:      r.Order,
		Levels:     r.Levels,
		DurationMS: r.Duration.Milliseconds(),
	}
	if err := r.Err(); err != nil {
		out.Error = err.Error()
	}
	if r.Cycle != nil {
		out.Cycles = r.Cycle.Components
	}
	// the stored form carries the same records as strings
	return fillFromSnapshot(out, engine.ToSnapshot(r))
}

// FromSnapshot converts a stored snapshot to the same structured form.
func FromSnapshot(s *state.Snapshot) ReportOutput {
	out := ReportOutput{
		Name:     s.Name,
		FilePath: s.FilePath,
		Hash:     s.ContentHash,
		Order:    s.Order,
		Error:    s.ParseError,
	}
	switch {
	case s.ParseError != "":
		out.Status = "error"
	case len(s.CycleKeys) > 0:
		out.Status = "cycle"
		out.Cycles = [][]string{s.CycleKeys}
	case len(s.Diagnostics) > 0:
		out.Status = "warnings"
	default:
		out.Status = "ok"
	}
	return fillFromSnapshot(out, s)
}

func fillFromSnapshot(out ReportOutput, s *state.Snapshot) ReportOutput {
	out.ResultKey = s.ResultKey
	for _, t := range s.Tables {
		out.Tables = append(out.Tables, TableOutput{
			Key:           t.Key,
			CanonicalName: t.CanonicalName,
			Alias:         t.Alias,
			Kind:          t.Kind,
			Scope:         t.Scope,
		})
	}
	for _, c := range s.Columns {
		deps := c.Dependencies
		if deps == nil {
			deps = []string{}
		}
		out.Columns = append(out.Columns, ColumnOutput{
			Context:          c.Context,
			OutputName:       c.OutputName,
			SourceExpression: c.SourceExpression,
			Dependencies:     deps,
			Unresolved:       c.Unresolved,
		})
	}
	for _, e := range s.Edges {
		out.Edges = append(out.Edges, EdgeOutput{Producer: e.Producer, Consumer: e.Consumer})
	}
	for _, d := range s.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, DiagnosticOutput{
			Kind:    d.Kind,
			Context: d.Context,
			Subject: d.Subject,
			Message: d.Message,
		})
	}
	return out
}

// FromBatch converts a directory analysis to its structured form.
func FromBatch(res *engine.BatchResult, saved []string) BatchOutput {
	out := BatchOutput{
		Dir:             res.Dir,
		Queries:         make([]BatchEntry, 0, len(res.Reports)),
		ExternalSources: res.ExternalSources(),
		Saved:           saved,
		Duration:        res.Duration,
		Summary: BatchSummary{
			Total:      len(res.Reports),
			Failed:     res.Failed(),
			DurationMS: res.Duration.Milliseconds(),
		},
	}

	for _, r := range res.Reports {
		entry := BatchEntry{
			Name:     r.Name,
			FilePath: r.FilePath,
			Status:   r.Status(),
		}
		if err := r.Err(); err != nil {
			entry.Error = err.Error()
		}
		if r.Graph != nil {
			entry.Tables = len(r.Graph.Tables())
			entry.Columns = len(r.Graph.Columns())
			entry.Diagnostics = len(r.Graph.Diagnostics())
		}
		out.Queries = append(out.Queries, entry)
	}

	pg := res.ProjectGraph()
	for _, r := range res.Reports {
		for _, parent := range pg.Parents(r.Name) {
			out.Dependencies = append(out.Dependencies, EdgeOutput{Producer: parent, Consumer: r.Name})
		}
	}
	return out
}

// FromHistory converts snapshot summaries to listing entries.
func FromHistory(list []state.SnapshotSummary) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(list))
	for _, s := range list {
		out = append(out, HistoryEntry{
			ID:          s.ID,
			Name:        s.Name,
			Hash:        s.ContentHash,
			CreatedAt:   s.CreatedAt,
			Tables:      s.Tables,
			Edges:       s.Edges,
			Diagnostics: s.Diagnostics,
			Cyclic:      s.Cyclic,
			Error:       s.ParseError,
		})
	}
	return out
}

// FromDeps lists the producers and consumers of key in an analyzed query,
// either direct or transitive.
func FromDeps(r *engine.Report, key string, transitive bool) (DepsOutput, error) {
	g := r.Graph
	if g == nil {
		return DepsOutput{}, fmt.Errorf("cannot inspect %s: %w", r.Name, r.Err())
	}
	if _, ok := g.Table(key); !ok {
		return DepsOutput{}, fmt.Errorf("%w %q; known keys: %s", ErrUnknownKey, key, strings.Join(g.Keys(), ", "))
	}

	out := DepsOutput{Name: r.Name, Key: key, Transitive: transitive}
	if transitive {
		out.Upstream = g.Upstream(key)
		out.Downstream = g.Downstream(key)
	} else {
		out.Upstream = entityKeys(g.IncomingDependencies(key))
		out.Downstream = entityKeys(g.Dependents(key))
	}
	if out.Upstream == nil {
		out.Upstream = []string{}
	}
	if out.Downstream == nil {
		out.Downstream = []string{}
	}
	return out, nil
}

func entityKeys(entities []lineage.TableEntity) []string {
	keys := make([]string, 0, len(entities))
	for _, e := range entities {
		keys = append(keys, e.Key)
	}
	return keys
}
