// Package export writes analysis snapshots into a SQL database so lineage
// can be queried next to the warehouse it describes.
//
// Two targets are supported: DuckDB files and PostgreSQL servers. Both are
// reached through database/sql and share one set of statements; positional
// $N placeholders work with either driver.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"  // registers the "pgx" driver
	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver

	"github.com/leapstack-labs/querygraph/internal/state"
)

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown export driver")

var errNotConnected = errors.New("database connection not established")

// Config holds the connection settings for an export target.
type Config struct {
	// Driver is "duckdb" or "postgres".
	Driver string

	// Path is the DuckDB database file. Use ":memory:" for a throwaway database.
	Path string

	// Host, Port, Database, Username and Password address a PostgreSQL server.
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema qualifies the lineage tables. Empty uses the connection default.
	Schema string

	// Options contains additional driver-specific options (e.g. sslmode).
	Options map[string]string
}

// Stats counts what one Export call wrote.
type Stats struct {
	Queries int
	Tables  int
	Columns int
	Edges   int
}

// Exporter writes snapshots to an open database.
type Exporter struct {
	db     *sql.DB
	schema string
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the target described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Exporter, error) {
	var driver, dsn string
	switch strings.ToLower(cfg.Driver) {
	case DriverDuckDB, "":
		driver = "duckdb"
		dsn = cfg.Path
		if dsn == "" {
			dsn = ":memory:"
		}
	case DriverPostgres, "postgresql", "pgx":
		driver = "pgx"
		dsn = buildPostgresDSN(cfg)
	default:
		return nil, fmt.Errorf("%w %q: must be one of: %s, %s", ErrUnknownDriver, cfg.Driver, DriverDuckDB, DriverPostgres)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	e := New(db, cfg.Schema, logger)
	e.logger.Debug("connected to export target", "driver", driver, "schema", cfg.Schema)
	return e, nil
}

// New wraps an already open database.
func New(db *sql.DB, schema string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		db:     db,
		schema: schema,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection.
func (e *Exporter) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// table returns the possibly schema-qualified name of a lineage table.
func (e *Exporter) table(name string) string {
	if e.schema == "" {
		return name
	}
	return e.schema + "." + name
}

// EnsureSchema creates the lineage tables if they do not exist.
func (e *Exporter) EnsureSchema(ctx context.Context) error {
	if e.db == nil {
		return errNotConnected
	}

	var stmts []string
	if e.schema != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+e.schema)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS `+e.table("qg_queries")+` (
			query TEXT PRIMARY KEY,
			file_path TEXT,
			content_hash TEXT,
			result_key TEXT,
			status TEXT,
			exported_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS `+e.table("qg_tables")+` (
			query TEXT NOT NULL,
			entity_key TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			alias TEXT,
			kind TEXT NOT NULL,
			scope TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS `+e.table("qg_columns")+` (
			query TEXT NOT NULL,
			context TEXT NOT NULL,
			output_name TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			source_expression TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS `+e.table("qg_column_dependencies")+` (
			query TEXT NOT NULL,
			context TEXT NOT NULL,
			output_name TEXT NOT NULL,
			dependency TEXT NOT NULL,
			resolved BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS `+e.table("qg_edges")+` (
			query TEXT NOT NULL,
			producer TEXT NOT NULL,
			consumer TEXT NOT NULL
		)`,
	)

	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create lineage tables: %w", err)
		}
	}
	return nil
}

// Export replaces the rows of every given query in one transaction.
// Queries that are not in snaps are left untouched.
func (e *Exporter) Export(ctx context.Context, snaps []*state.Snapshot) (Stats, error) {
	var stats Stats
	if e.db == nil {
		return stats, errNotConnected
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exportedAt := e.now()
	for _, snap := range snaps {
		if err := e.exportOne(ctx, tx, snap, exportedAt, &stats); err != nil {
			return Stats{}, fmt.Errorf("export %s: %w", snap.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("failed to commit export: %w", err)
	}
	e.logger.Info("exported lineage",
		"queries", stats.Queries, "tables", stats.Tables,
		"columns", stats.Columns, "edges", stats.Edges)
	return stats, nil
}

func (e *Exporter) exportOne(ctx context.Context, tx *sql.Tx, snap *state.Snapshot, at time.Time, stats *Stats) error {
	// dependents first
	for _, name := range []string{"qg_column_dependencies", "qg_columns", "qg_edges", "qg_tables", "qg_queries"} {
		//nolint:gosec // table names are constants
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+e.table(name)+" WHERE query = $1", snap.Name); err != nil {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+e.table("qg_queries")+" (query, file_path, content_hash, result_key, status, exported_at) VALUES ($1, $2, $3, $4, $5, $6)",
		snap.Name, snap.FilePath, snap.ContentHash, snap.ResultKey, snapshotStatus(snap), at,
	); err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}
	stats.Queries++

	for _, t := range snap.Tables {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+e.table("qg_tables")+" (query, entity_key, canonical_name, alias, kind, scope) VALUES ($1, $2, $3, $4, $5, $6)",
			snap.Name, t.Key, t.CanonicalName, t.Alias, t.Kind, t.Scope,
		); err != nil {
			return fmt.Errorf("failed to insert table %s: %w", t.Key, err)
		}
		stats.Tables++
	}

	for i, c := range snap.Columns {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+e.table("qg_columns")+" (query, context, output_name, ordinal, source_expression) VALUES ($1, $2, $3, $4, $5)",
			snap.Name, c.Context, c.OutputName, i, c.SourceExpression,
		); err != nil {
			return fmt.Errorf("failed to insert column %s.%s: %w", c.Context, c.OutputName, err)
		}
		stats.Columns++

		if err := e.insertDeps(ctx, tx, snap.Name, c); err != nil {
			return err
		}
	}

	for _, edge := range snap.Edges {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+e.table("qg_edges")+" (query, producer, consumer) VALUES ($1, $2, $3)",
			snap.Name, edge.Producer, edge.Consumer,
		); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", edge.Producer, edge.Consumer, err)
		}
		stats.Edges++
	}
	return nil
}

// insertDeps writes one row per dependency. Unresolved is a subset of
// Dependencies and only sets the resolved flag.
func (e *Exporter) insertDeps(ctx context.Context, tx *sql.Tx, query string, c state.ColumnRecord) error {
	unresolved := make(map[string]bool, len(c.Unresolved))
	for _, u := range c.Unresolved {
		unresolved[u] = true
	}

	for _, dep := range c.Dependencies {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+e.table("qg_column_dependencies")+" (query, context, output_name, dependency, resolved) VALUES ($1, $2, $3, $4, $5)",
			query, c.Context, c.OutputName, dep, !unresolved[dep],
		); err != nil {
			return fmt.Errorf("failed to insert dependency %s of %s.%s: %w", dep, c.Context, c.OutputName, err)
		}
	}
	return nil
}

func snapshotStatus(s *state.Snapshot) string {
	switch {
	case s.ParseError != "":
		return "error"
	case len(s.CycleKeys) > 0:
		return "cycle"
	case len(s.Diagnostics) > 0:
		return "warnings"
	}
	return "ok"
}
