package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querygraph/internal/state"
	"github.com/leapstack-labs/querygraph/internal/testutil"
)

func sampleSnapshot() *state.Snapshot {
	return &state.Snapshot{
		Name:        "orders",
		FilePath:    "queries/orders.sql",
		ContentHash: "abc",
		ResultKey:   "__result__",
		Tables: []state.TableRecord{
			{Key: "o", CanonicalName: "orders", Alias: "o", Kind: "base_table"},
			{Key: "__result__", CanonicalName: "__result__", Kind: "result"},
		},
		Columns: []state.ColumnRecord{
			{Context: "__result__", OutputName: "id", SourceExpression: "o.id + x", Dependencies: []string{"o.id", "x"}, Unresolved: []string{"x"}},
		},
		Edges: []state.EdgeRecord{{Producer: "o", Consumer: "__result__"}},
		Order: []string{"o", "__result__"},
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name: "basic connection",
			config: Config{
				Host:     "localhost",
				Port:     5432,
				Database: "warehouse",
				Username: "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=warehouse sslmode=disable user=user password=pass",
		},
		{
			name: "custom sslmode",
			config: Config{
				Host:     "prod.example.com",
				Database: "proddb",
				Username: "admin",
				Options:  map[string]string{"sslmode": "require"},
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin",
		},
		{
			name:     "defaults",
			config:   Config{Database: "mydb"},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name: "extra options sorted",
			config: Config{
				Database: "mydb",
				Options:  map[string]string{"search_path": "lineage", "application_name": "querygraph"},
			},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable application_name=querygraph search_path=lineage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
	require.ErrorIs(t, err, ErrUnknownDriver)
	assert.Contains(t, err.Error(), "oracle")
}

func TestExporter_NotConnected(t *testing.T) {
	e := New(nil, "", nil)
	_, err := e.Export(context.Background(), []*state.Snapshot{sampleSnapshot()})
	assert.ErrorIs(t, err, errNotConnected)
	assert.ErrorIs(t, e.EnsureSchema(context.Background()), errNotConnected)
	assert.NoError(t, e.Close())
}

func TestEnsureSchema_Qualified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS lineage").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, name := range []string{"qg_queries", "qg_tables", "qg_columns", "qg_column_dependencies", "qg_edges"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS lineage." + name + " ").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	e := New(db, "lineage", testutil.NewTestLogger(t))
	require.NoError(t, e.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExport_Statements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	for _, name := range []string{"qg_column_dependencies", "qg_columns", "qg_edges", "qg_tables", "qg_queries"} {
		mock.ExpectExec("DELETE FROM " + name + " WHERE query").WithArgs("orders").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO qg_queries").
		WithArgs("orders", "queries/orders.sql", "abc", "__result__", "ok", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qg_tables").
		WithArgs("orders", "o", "orders", "o", "base_table", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qg_tables").
		WithArgs("orders", "__result__", "__result__", "", "result", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qg_columns").
		WithArgs("orders", "__result__", "id", 0, "o.id + x").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qg_column_dependencies").
		WithArgs("orders", "__result__", "id", "o.id", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qg_column_dependencies").
		WithArgs("orders", "__result__", "id", "x", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qg_edges").
		WithArgs("orders", "o", "__result__").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := New(db, "", testutil.NewTestLogger(t))
	stats, err := e.Export(context.Background(), []*state.Snapshot{sampleSnapshot()})
	require.NoError(t, err)
	assert.Equal(t, Stats{Queries: 1, Tables: 2, Columns: 1, Edges: 1}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExport_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM qg_column_dependencies").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	e := New(db, "", nil)
	stats, err := e.Export(context.Background(), []*state.Snapshot{sampleSnapshot()})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "export orders")
	assert.Equal(t, Stats{}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStatus(t *testing.T) {
	assert.Equal(t, "ok", snapshotStatus(&state.Snapshot{}))
	assert.Equal(t, "error", snapshotStatus(&state.Snapshot{ParseError: "bad"}))
	assert.Equal(t, "cycle", snapshotStatus(&state.Snapshot{CycleKeys: []string{"p", "q"}}))
	assert.Equal(t, "warnings", snapshotStatus(&state.Snapshot{Diagnostics: []state.DiagnosticRecord{{Kind: "unresolved_reference"}}}))
}

func TestDuckDB_ExportReplacesRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lineage.duckdb")

	e, err := Open(ctx, Config{Driver: DriverDuckDB, Path: path}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	require.NoError(t, e.EnsureSchema(ctx))
	require.NoError(t, e.EnsureSchema(ctx), "schema creation is idempotent")

	snap := sampleSnapshot()
	_, err = e.Export(ctx, []*state.Snapshot{snap})
	require.NoError(t, err)

	snap.Tables = snap.Tables[:1]
	stats, err := e.Export(ctx, []*state.Snapshot{snap})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tables)

	var tables int
	require.NoError(t, e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qg_tables WHERE query = 'orders'").Scan(&tables))
	assert.Equal(t, 1, tables)

	var deps, unresolved int
	require.NoError(t, e.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT resolved) FROM qg_column_dependencies").Scan(&deps, &unresolved))
	assert.Equal(t, 2, deps, "one row per dependency")
	assert.Equal(t, 1, unresolved)

	var xRows int
	require.NoError(t, e.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM qg_column_dependencies WHERE dependency = 'x'").Scan(&xRows))
	assert.Equal(t, 1, xRows)

	var producer string
	require.NoError(t, e.db.QueryRowContext(ctx, "SELECT producer FROM qg_edges WHERE consumer = '__result__'").Scan(&producer))
	assert.Equal(t, "o", producer)
}
