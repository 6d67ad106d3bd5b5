package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SaveSnapshot stores snap and all of its records in one transaction and
// returns the new snapshot id. snap.ID and snap.CreatedAt are filled in.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) (string, error) {
	if s.db == nil {
		return "", errNotOpen
	}

	snap.ID = generateID()
	snap.CreatedAt = s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, name, file_path, content_hash, sql_text, result_key, parse_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Name, snap.FilePath, snap.ContentHash, snap.SQL, snap.ResultKey, snap.ParseError,
		formatTime(snap.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	for i, t := range snap.Tables {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_tables (snapshot_id, position, key, canonical_name, alias, kind, scope)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, t.Key, t.CanonicalName, t.Alias, t.Kind, t.Scope,
		); err != nil {
			return "", fmt.Errorf("insert table %s: %w", t.Key, err)
		}
	}

	for i, c := range snap.Columns {
		if err := insertColumn(ctx, tx, snap.ID, i, c); err != nil {
			return "", err
		}
	}

	for i, e := range snap.Edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_edges (snapshot_id, position, producer, consumer)
			VALUES (?, ?, ?, ?)`,
			snap.ID, i, e.Producer, e.Consumer,
		); err != nil {
			return "", fmt.Errorf("insert edge %s -> %s: %w", e.Producer, e.Consumer, err)
		}
	}

	if err := insertKeys(ctx, tx, snap.ID, false, snap.Order); err != nil {
		return "", err
	}
	if err := insertKeys(ctx, tx, snap.ID, true, snap.CycleKeys); err != nil {
		return "", err
	}

	for i, d := range snap.Diagnostics {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_diagnostics (snapshot_id, position, kind, context, subject, message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ID, i, d.Kind, d.Context, d.Subject, d.Message,
		); err != nil {
			return "", fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("saved snapshot", "id", snap.ID, "name", snap.Name, "tables", len(snap.Tables))
	return snap.ID, nil
}

func insertColumn(ctx context.Context, tx *sql.Tx, id string, pos int, c ColumnRecord) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_columns (snapshot_id, position, context, output_name, source_expression)
		VALUES (?, ?, ?, ?, ?)`,
		id, pos, c.Context, c.OutputName, c.SourceExpression,
	); err != nil {
		return fmt.Errorf("insert column %s: %w", c.OutputName, err)
	}

	unresolved := make(map[string]bool, len(c.Unresolved))
	for _, u := range c.Unresolved {
		unresolved[u] = true
	}

	for i, dep := range c.Dependencies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_column_deps (snapshot_id, column_position, position, name, resolved)
			VALUES (?, ?, ?, ?, ?)`,
			id, pos, i, dep, !unresolved[dep],
		); err != nil {
			return fmt.Errorf("insert dependency %s: %w", dep, err)
		}
	}
	return nil
}

func insertKeys(ctx context.Context, tx *sql.Tx, id string, cyclic bool, keys []string) error {
	for i, key := range keys {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_order (snapshot_id, cyclic, position, key)
			VALUES (?, ?, ?, ?)`,
			id, cyclic, i, key,
		); err != nil {
			return fmt.Errorf("insert order key %s: %w", key, err)
		}
	}
	return nil
}

// GetSnapshot loads a snapshot with all of its records.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	snap := &Snapshot{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, file_path, content_hash, sql_text, result_key, parse_error, created_at
		FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Name, &snap.FilePath, &snap.ContentHash, &snap.SQL, &snap.ResultKey, &snap.ParseError, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if snap.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	if snap.Tables, err = s.loadTables(ctx, id); err != nil {
		return nil, err
	}
	if snap.Columns, err = s.loadColumns(ctx, id); err != nil {
		return nil, err
	}
	if snap.Edges, err = s.loadEdges(ctx, id); err != nil {
		return nil, err
	}
	if snap.Order, err = s.loadKeys(ctx, id, false); err != nil {
		return nil, err
	}
	if snap.CycleKeys, err = s.loadKeys(ctx, id, true); err != nil {
		return nil, err
	}
	if snap.Diagnostics, err = s.loadDiagnostics(ctx, id); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *SQLiteStore) loadTables(ctx context.Context, id string) ([]TableRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, canonical_name, alias, kind, scope
		FROM snapshot_tables WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TableRecord
	for rows.Next() {
		var t TableRecord
		if err := rows.Scan(&t.Key, &t.CanonicalName, &t.Alias, &t.Kind, &t.Scope); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadColumns(ctx context.Context, id string) ([]ColumnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, context, output_name, source_expression
		FROM snapshot_columns WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	var out []ColumnRecord
	var positions []int
	for rows.Next() {
		var c ColumnRecord
		var pos int
		if err := rows.Scan(&pos, &c.Context, &c.OutputName, &c.SourceExpression); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, c)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	byPos := make(map[int]int, len(positions))
	for i, pos := range positions {
		byPos[pos] = i
	}

	deps, err := s.db.QueryContext(ctx, `
		SELECT column_position, name, resolved
		FROM snapshot_column_deps WHERE snapshot_id = ?
		ORDER BY column_position, position`, id)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer func() { _ = deps.Close() }()

	for deps.Next() {
		var pos int
		var name string
		var resolved bool
		if err := deps.Scan(&pos, &name, &resolved); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		i, ok := byPos[pos]
		if !ok {
			continue
		}
		out[i].Dependencies = append(out[i].Dependencies, name)
		if !resolved {
			out[i].Unresolved = append(out[i].Unresolved, name)
		}
	}
	return out, deps.Err()
}

func (s *SQLiteStore) loadEdges(ctx context.Context, id string) ([]EdgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT producer, consumer
		FROM snapshot_edges WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EdgeRecord
	for rows.Next() {
		var e EdgeRecord
		if err := rows.Scan(&e.Producer, &e.Consumer); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadKeys(ctx context.Context, id string, cyclic bool) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM snapshot_order
		WHERE snapshot_id = ? AND cyclic = ? ORDER BY position`, id, cyclic)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadDiagnostics(ctx context.Context, id string) ([]DiagnosticRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, context, subject, message
		FROM snapshot_diagnostics WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DiagnosticRecord
	for rows.Next() {
		var d DiagnosticRecord
		if err := rows.Scan(&d.Kind, &d.Context, &d.Subject, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const summarySelect = `
	SELECT s.id, s.name, s.content_hash, s.created_at, s.parse_error,
		(SELECT count(*) FROM snapshot_tables t WHERE t.snapshot_id = s.id),
		(SELECT count(*) FROM snapshot_edges e WHERE e.snapshot_id = s.id),
		(SELECT count(*) FROM snapshot_diagnostics d WHERE d.snapshot_id = s.id),
		EXISTS (SELECT 1 FROM snapshot_order o WHERE o.snapshot_id = s.id AND o.cyclic = 1)
	FROM snapshots s`

// ListSnapshots returns snapshot summaries, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter ListFilter) ([]SnapshotSummary, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	var query strings.Builder
	query.WriteString(summarySelect)
	var args []any
	if filter.Name != "" {
		query.WriteString(" WHERE s.name = ?")
		args = append(args, filter.Name)
	}
	query.WriteString(" ORDER BY s.created_at DESC, s.rowid DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SnapshotSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest snapshot of a query, or nil if there
// is none.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, name string) (*SnapshotSummary, error) {
	list, err := s.ListSnapshots(ctx, ListFilter{Name: name, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// DeleteSnapshot removes a snapshot and its records.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, id string) error {
	if s.db == nil {
		return errNotOpen
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*SnapshotSummary, error) {
	var sum SnapshotSummary
	var createdAt string
	if err := row.Scan(&sum.ID, &sum.Name, &sum.ContentHash, &createdAt, &sum.ParseError,
		&sum.Tables, &sum.Edges, &sum.Diagnostics, &sum.Cyclic); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	sum.CreatedAt = t
	return &sum, nil
}
