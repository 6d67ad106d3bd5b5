package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querygraph/internal/testutil"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Name:        "customer_ids",
		FilePath:    "queries/customer_ids.sql",
		ContentHash: "0011223344556677",
		SQL:         "WITH s AS (SELECT c.id FROM customers c) SELECT s.id FROM s",
		ResultKey:   "__result__",
		Tables: []TableRecord{
			{Key: "s", CanonicalName: "s", Kind: "cte"},
			{Key: "c", CanonicalName: "customers", Alias: "c", Kind: "base_table", Scope: "s"},
			{Key: "__result__", CanonicalName: "__result__", Kind: "result"},
		},
		Columns: []ColumnRecord{
			{Context: "s", OutputName: "c.id", SourceExpression: "c.id", Dependencies: []string{"c.id"}},
			{Context: "__result__", OutputName: "total", SourceExpression: "s.id + x.y",
				Dependencies: []string{"s.id", "x.y"}, Unresolved: []string{"x.y"}},
			{Context: "__result__", OutputName: "*", SourceExpression: "*"},
		},
		Edges: []EdgeRecord{
			{Producer: "c", Consumer: "s"},
			{Producer: "s", Consumer: "__result__"},
		},
		Order: []string{"c", "s", "__result__"},
		Diagnostics: []DiagnosticRecord{
			{Kind: "unresolved_reference", Context: "__result__", Subject: "x.y", Message: "column \"x.y\" does not resolve"},
		},
	}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	assert.Equal(t, ":memory:", store.Path())
	require.NoError(t, store.Close())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.SaveSnapshot(ctx, sampleSnapshot())
	assert.Error(t, err)
	_, err = store.GetSnapshot(ctx, "x")
	assert.Error(t, err)
	_, err = store.ListSnapshots(ctx, ListFilter{})
	assert.Error(t, err)
	assert.Error(t, store.Migrate())
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// running again is a no-op
	require.NoError(t, store.Migrate())

	for _, table := range []string{
		"snapshots", "snapshot_tables", "snapshot_columns", "snapshot_column_deps",
		"snapshot_edges", "snapshot_order", "snapshot_diagnostics",
	} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	fixed := time.Date(2026, 3, 1, 12, 30, 0, 5, time.UTC)
	store.now = func() time.Time { return fixed }

	in := sampleSnapshot()
	id, err := store.SaveSnapshot(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, in.ID)

	got, err := store.GetSnapshot(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.FilePath, got.FilePath)
	assert.Equal(t, in.SQL, got.SQL)
	assert.Equal(t, in.ResultKey, got.ResultKey)
	assert.True(t, fixed.Equal(got.CreatedAt))
	assert.Equal(t, in.Tables, got.Tables)
	assert.Equal(t, in.Columns, got.Columns)
	assert.Equal(t, in.Edges, got.Edges)
	assert.Equal(t, in.Order, got.Order)
	assert.Empty(t, got.CycleKeys)
	assert.Equal(t, in.Diagnostics, got.Diagnostics)
}

func TestSQLiteStore_CyclicSnapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap := sampleSnapshot()
	snap.Order = nil
	snap.CycleKeys = []string{"p", "q"}

	id, err := store.SaveSnapshot(ctx, snap)
	require.NoError(t, err)

	got, err := store.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Order)
	assert.Equal(t, []string{"p", "q"}, got.CycleKeys)

	list, err := store.ListSnapshots(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Cyclic)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSnapshot(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))

	err = store.DeleteSnapshot(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestSQLiteStore_ListSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []string
	for _, name := range []string{"a", "b", "a"} {
		snap := sampleSnapshot()
		snap.Name = name
		id, err := store.SaveSnapshot(ctx, snap)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"all newest first", ListFilter{}, []string{ids[2], ids[1], ids[0]}},
		{"by name", ListFilter{Name: "a"}, []string{ids[2], ids[0]}},
		{"limit", ListFilter{Limit: 1}, []string{ids[2]}},
		{"unknown name", ListFilter{Name: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.ListSnapshots(ctx, tt.filter)
			require.NoError(t, err)
			var got []string
			for _, s := range list {
				got = append(got, s.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	list, err := store.ListSnapshots(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, list[0].Tables)
	assert.Equal(t, 2, list[0].Edges)
	assert.Equal(t, 1, list[0].Diagnostics)
	assert.False(t, list[0].Cyclic)

	latest, err := store.LatestSnapshot(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[1], latest.ID)

	none, err := store.LatestSnapshot(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_DeleteCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.SaveSnapshot(ctx, sampleSnapshot())
	require.NoError(t, err)
	require.NoError(t, store.DeleteSnapshot(ctx, id))

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT count(*) FROM snapshot_column_deps`).Scan(&n))
	assert.Zero(t, n)
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.Migrate())
	id, err := store.SaveSnapshot(ctx, sampleSnapshot())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate())

	got, err := reopened.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "customer_ids", got.Name)
}
