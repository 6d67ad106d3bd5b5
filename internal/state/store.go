// Package state persists analysis snapshots in SQLite.
//
// A snapshot is the complete result of analyzing one query at one point in
// time: its tables, column lineage, edges, ordering and diagnostics. The
// records here are plain values so the package does not depend on the
// lineage engine.
package state

import (
	"context"
	"time"
)

// Store is the snapshot persistence interface.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	SaveSnapshot(ctx context.Context, snap *Snapshot) (string, error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, filter ListFilter) ([]SnapshotSummary, error)
	LatestSnapshot(ctx context.Context, name string) (*SnapshotSummary, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// Snapshot is a stored analysis result.
type Snapshot struct {
	ID          string
	Name        string
	FilePath    string
	ContentHash string
	SQL         string
	ResultKey   string
	ParseError  string
	CreatedAt   time.Time

	Tables      []TableRecord
	Columns     []ColumnRecord
	Edges       []EdgeRecord
	Order       []string // empty when the graph is cyclic
	CycleKeys   []string
	Diagnostics []DiagnosticRecord
}

// TableRecord is a stored table entity.
type TableRecord struct {
	Key           string
	CanonicalName string
	Alias         string
	Kind          string
	Scope         string
}

// ColumnRecord is a stored column lineage record.
type ColumnRecord struct {
	Context          string
	OutputName       string
	SourceExpression string
	Dependencies     []string
	Unresolved       []string
}

// EdgeRecord is a stored dependency edge.
type EdgeRecord struct {
	Producer string
	Consumer string
}

// DiagnosticRecord is a stored diagnostic.
type DiagnosticRecord struct {
	Kind    string
	Context string
	Subject string
	Message string
}

// SnapshotSummary is the listing view of a snapshot.
type SnapshotSummary struct {
	ID          string
	Name        string
	ContentHash string
	CreatedAt   time.Time
	Tables      int
	Edges       int
	Diagnostics int
	Cyclic      bool
	ParseError  string
}

// ListFilter narrows ListSnapshots.
type ListFilter struct {
	Name  string // exact query name, empty for all
	Limit int    // 0 for no limit
}
