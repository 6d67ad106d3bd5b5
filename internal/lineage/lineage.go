package lineage

// DefaultResultKey is the registry key of the synthetic result entity.
const DefaultResultKey = "__result__"

// SubqueryName is the canonical name of every derived subquery.
const SubqueryName = "(subquery)"

// TableKind classifies where a table-like entity comes from.
type TableKind int

const (
	// KindBaseTable is a table read directly by name.
	KindBaseTable TableKind = iota
	// KindCTE is a common table expression.
	KindCTE
	// KindDerivedSubquery is an aliased subquery in FROM.
	KindDerivedSubquery
	// KindResult is the synthetic entity the outermost SELECT writes to.
	KindResult
)

var tableKindNames = [...]string{
	KindBaseTable:       "base_table",
	KindCTE:             "cte",
	KindDerivedSubquery: "derived_subquery",
	KindResult:          "result",
}

func (k TableKind) String() string {
	if int(k) >= 0 && int(k) < len(tableKindNames) {
		return tableKindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k TableKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TableEntity is a table-like entity registered in a graph.
type TableEntity struct {
	Key           string    // Registry key: alias if present, else canonical name
	CanonicalName string    // Source name as written, "(subquery)", CTE name or result key
	Alias         string    // Alias as written, empty if none
	Kind          TableKind // Provenance
	Scope         string    // Path of the query block that declared it, empty at top level
}

// ColumnLineage records one projected column.
type ColumnLineage struct {
	OutputName       string   // Alias, else rendered expression, else "*"
	Context          string   // Key of the entity the projection belongs to
	SourceExpression string   // Rendered projection expression
	Dependencies     []string // Identifiers read, in first-seen order, duplicates kept
	Unresolved       []string // Dependencies no visible table accounts for
}

// IsResolved reports whether every dependency was attributed to a table.
func (c ColumnLineage) IsResolved() bool {
	return len(c.Unresolved) == 0
}

// Edge is a dependency: Consumer reads from Producer.
type Edge struct {
	Producer string
	Consumer string
}
