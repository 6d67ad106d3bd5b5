// Package ast defines the parsed SQL query tree consumed by the lineage
// analyzer. The tree is immutable once built; analyzers only read it.
package ast

import "strings"

// ---------- Query ----------

// Query is a complete query: an optional WITH clause, a body and the
// trailing ORDER BY / LIMIT / OFFSET clauses.
type Query struct {
	With    *With
	Body    SetExpr
	OrderBy []OrderByItem
	Limit   Expr
	Offset  Expr
}

// With is a WITH clause.
type With struct {
	Recursive bool
	CTEs      []*CTE
}

// CTE is a common table expression declared in a WITH clause.
type CTE struct {
	Name    string
	Columns []string // optional column list: name(a, b) AS (...)
	Query   *Query
}

// OrderByItem is a single ORDER BY entry.
type OrderByItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

// ---------- Query bodies ----------

// SetExpr is the body of a query: a plain SELECT, a set operation, a
// parenthesized query or a VALUES list.
type SetExpr interface {
	setExprNode()
}

// Select is a single SELECT block.
type Select struct {
	Distinct   bool
	Projection []SelectItem
	From       []*TableWithJoins
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	Windows    []NamedWindow
	Qualify    Expr
}

// NamedWindow is an entry of a WINDOW clause: name AS (spec).
type NamedWindow struct {
	Name string
	Spec *WindowSpec
}

// SetOpType is the operator of a set operation.
type SetOpType string

// Set operation operators.
const (
	SetOpUnion     SetOpType = "UNION"
	SetOpIntersect SetOpType = "INTERSECT"
	SetOpExcept    SetOpType = "EXCEPT"
)

// SetOperation combines two query bodies.
type SetOperation struct {
	Op    SetOpType
	All   bool
	Left  SetExpr
	Right SetExpr
}

// NestedQuery is a parenthesized query used as a body.
type NestedQuery struct {
	Query *Query
}

// Values is a VALUES (...), (...) body.
type Values struct {
	Rows [][]Expr
}

func (*Select) setExprNode()       {}
func (*SetOperation) setExprNode() {}
func (*NestedQuery) setExprNode()  {}
func (*Values) setExprNode()       {}

// ---------- Projection ----------

// SelectItem is one entry of a SELECT list.
type SelectItem interface {
	selectItemNode()
}

// UnnamedExpr is a projected expression without an alias.
type UnnamedExpr struct {
	Expr Expr
}

// AliasedExpr is a projected expression with an alias.
type AliasedExpr struct {
	Expr  Expr
	Alias string
}

// Wildcard is a bare *.
type Wildcard struct{}

// QualifiedWildcard is t.* (or s.t.*).
type QualifiedWildcard struct {
	Qualifier []string
}

func (*UnnamedExpr) selectItemNode()       {}
func (*AliasedExpr) selectItemNode()       {}
func (*Wildcard) selectItemNode()          {}
func (*QualifiedWildcard) selectItemNode() {}

// ---------- FROM ----------

// TableWithJoins is one entry of the comma separated FROM list together
// with the joins chained onto it.
type TableWithJoins struct {
	Relation TableFactor
	Joins    []*Join
}

// JoinType is the kind of a join.
type JoinType string

// Join types.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
)

// Join is a single JOIN target.
type Join struct {
	Type     JoinType
	Natural  bool
	Relation TableFactor
	On       Expr
	Using    []string
}

// TableFactor is a single source in a FROM clause.
type TableFactor interface {
	tableFactorNode()
}

// TableName is a direct reference to a named table: [catalog.][schema.]name.
type TableName struct {
	Parts []string
	Alias string
}

// Name returns the dotted, fully qualified name as written.
func (t *TableName) Name() string {
	return JoinParts(t.Parts)
}

// DerivedTable is a subquery in FROM.
type DerivedTable struct {
	Lateral bool
	Query   *Query
	Alias   string
}

// NestedJoin is a parenthesized join tree: FROM (a JOIN b ON ...).
type NestedJoin struct {
	Table *TableWithJoins
	Alias string
}

// TableFunction is a function used as a table source: read_csv('x.csv').
type TableFunction struct {
	Name  []string
	Args  []FuncArg
	Alias string
}

func (*TableName) tableFactorNode()     {}
func (*DerivedTable) tableFactorNode()  {}
func (*NestedJoin) tableFactorNode()    {}
func (*TableFunction) tableFactorNode() {}

// JoinParts joins identifier parts with dots.
func JoinParts(parts []string) string {
	return strings.Join(parts, ".")
}
