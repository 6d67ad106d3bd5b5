package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/querygraph/internal/state"
)

// ErrNoStore is returned by persistence operations when the engine was
// created without a state path.
var ErrNoStore = errors.New("state store not configured")

// Save stores r as a new snapshot and returns its id.
func (e *Engine) Save(ctx context.Context, r *Report) (string, error) {
	if e.store == nil {
		return "", ErrNoStore
	}
	id, err := e.store.SaveSnapshot(ctx, ToSnapshot(r))
	if err != nil {
		return "", fmt.Errorf("save snapshot of %s: %w", r.Name, err)
	}
	e.logger.Debug("saved snapshot", "name", r.Name, "id", id)
	return id, nil
}

// SaveChanged stores a snapshot for every report whose content hash
// differs from its latest snapshot. It returns the names that were saved.
func (e *Engine) SaveChanged(ctx context.Context, reports []*Report) ([]string, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}

	var saved []string
	for _, r := range reports {
		latest, err := e.store.LatestSnapshot(ctx, r.Name)
		if err != nil {
			return saved, fmt.Errorf("look up snapshot of %s: %w", r.Name, err)
		}
		if latest != nil && latest.ContentHash == r.Hash {
			e.logger.Debug("skipping unchanged query", "name", r.Name)
			continue
		}
		if _, err := e.Save(ctx, r); err != nil {
			return saved, err
		}
		saved = append(saved, r.Name)
	}
	return saved, nil
}

// ToSnapshot converts a report to its stored form.
func ToSnapshot(r *Report) *state.Snapshot {
	snap := &state.Snapshot{
		Name:        r.Name,
		FilePath:    r.FilePath,
		ContentHash: r.Hash,
		SQL:         r.SQL,
		Order:       r.Order,
	}
	if r.ParseErr != nil {
		snap.ParseError = r.ParseErr.Error()
	} else if r.BuildErr != nil {
		snap.ParseError = r.BuildErr.Error()
	}
	if r.Cycle != nil {
		snap.CycleKeys = r.Cycle.Keys
	}

	g := r.Graph
	if g == nil {
		return snap
	}
	snap.ResultKey = g.ResultKey()

	for _, t := range g.Tables() {
		snap.Tables = append(snap.Tables, state.TableRecord{
			Key:           t.Key,
			CanonicalName: t.CanonicalName,
			Alias:         t.Alias,
			Kind:          t.Kind.String(),
			Scope:         t.Scope,
		})
	}
	for _, c := range g.Columns() {
		snap.Columns = append(snap.Columns, state.ColumnRecord{
			Context:          c.Context,
			OutputName:       c.OutputName,
			SourceExpression: c.SourceExpression,
			Dependencies:     c.Dependencies,
			Unresolved:       c.Unresolved,
		})
	}
	for _, edge := range g.Edges() {
		snap.Edges = append(snap.Edges, state.EdgeRecord{Producer: edge.Producer, Consumer: edge.Consumer})
	}
	for _, d := range g.Diagnostics() {
		snap.Diagnostics = append(snap.Diagnostics, state.DiagnosticRecord{
			Kind:    d.Kind.String(),
			Context: d.Context,
			Subject: d.Subject,
			Message: d.Message,
		})
	}
	return snap
}
