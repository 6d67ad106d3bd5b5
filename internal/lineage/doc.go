// Package lineage builds table and column dependency graphs from parsed
// queries.
//
// Build walks an ast.Query once and records every table-like entity (base
// tables, CTEs, derived subqueries), every projected column together with
// the identifiers its expression reads, and a producer -> consumer edge for
// each table a query block reads from. The final SELECT writes into a
// synthetic result entity keyed "__result__" by default.
//
//	g, _ := lineage.Build(q)
//	order, err := g.TopologicalOrder() // dependencies first
//
// Construction never fails on odd input: unsupported shapes, unaliased
// derived tables and unresolvable references are recorded as Diagnostics.
// Only the ordering operations fail, and only on cycles.
//
// # Registry keys
//
// A table is keyed by its alias, or by its name when unaliased. With the
// default scoped strategy, a key that is already taken by a different
// entity is qualified by the declaring block's path ("monthly/o"); with the
// flat strategy the later registration replaces the earlier one.
//
// # Column resolution
//
// A qualified dependency such as o.amount resolves when o names a table
// visible to the block or an enclosing block. An unqualified dependency
// resolves only when exactly one table is visible. Everything else is
// listed in ColumnLineage.Unresolved and reported as an UnresolvedReference
// diagnostic; nothing is guessed.
package lineage
