package ast

// ExprKind tags every expression variant. The set is closed: consumers
// switch on the concrete type and treat anything they do not walk as opaque.
type ExprKind int

// Expression kinds.
const (
	KindIdentifier ExprKind = iota
	KindCompoundIdentifier
	KindBinary
	KindFunction
	KindNested
	KindLiteral
	KindUnary
	KindCase
	KindCast
	KindInList
	KindInSubquery
	KindBetween
	KindIsNull
	KindLike
	KindSubquery
	KindExists
	KindTypedString
	KindInterval
)

var exprKindNames = map[ExprKind]string{
	KindIdentifier:         "identifier",
	KindCompoundIdentifier: "compound_identifier",
	KindBinary:             "binary",
	KindFunction:           "function",
	KindNested:             "nested",
	KindLiteral:            "literal",
	KindUnary:              "unary",
	KindCase:               "case",
	KindCast:               "cast",
	KindInList:             "in_list",
	KindInSubquery:         "in_subquery",
	KindBetween:            "between",
	KindIsNull:             "is_null",
	KindLike:               "like",
	KindSubquery:           "subquery",
	KindExists:             "exists",
	KindTypedString:        "typed_string",
	KindInterval:           "interval",
}

func (k ExprKind) String() string {
	if s, ok := exprKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Expr is a SQL expression.
type Expr interface {
	Kind() ExprKind
}

// Identifier is a bare column or value name.
type Identifier struct {
	Name string
}

// CompoundIdentifier is a dotted name such as t.col or s.t.col.
type CompoundIdentifier struct {
	Parts []string
}

// BinaryExpr is left op right. Op is the upper-case operator text.
type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

// FuncCall is a function invocation, including aggregates and window calls.
type FuncCall struct {
	Name     []string
	Distinct bool
	Args     []FuncArg
	Filter   Expr        // FILTER (WHERE ...)
	Over     *WindowSpec // OVER (...) or OVER name
}

// Nested is a parenthesized expression.
type Nested struct {
	Expr Expr
}

// LiteralKind classifies literal values.
type LiteralKind int

// Literal kinds.
const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// Literal is a constant value.
type Literal struct {
	Type  LiteralKind
	Value string
}

// UnaryExpr is a prefix operator: NOT x, -x, +x.
type UnaryExpr struct {
	Op   string
	Expr Expr
}

// WhenClause is one WHEN ... THEN ... branch.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CaseExpr is a searched or simple CASE.
type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

// CastExpr is CAST(x AS t) or x::t.
type CastExpr struct {
	Expr        Expr
	Type        string
	DoubleColon bool
}

// InList is x [NOT] IN (a, b, ...).
type InList struct {
	Expr Expr
	List []Expr
	Not  bool
}

// InSubquery is x [NOT] IN (SELECT ...).
type InSubquery struct {
	Expr  Expr
	Query *Query
	Not   bool
}

// Between is x [NOT] BETWEEN low AND high.
type Between struct {
	Expr Expr
	Low  Expr
	High Expr
	Not  bool
}

// IsNull is x IS [NOT] NULL.
type IsNull struct {
	Expr Expr
	Not  bool
}

// Like is x [NOT] LIKE|ILIKE pattern.
type Like struct {
	Expr            Expr
	Pattern         Expr
	Not             bool
	CaseInsensitive bool
}

// Subquery is a scalar subquery.
type Subquery struct {
	Query *Query
}

// Exists is [NOT] EXISTS (SELECT ...).
type Exists struct {
	Query *Query
	Not   bool
}

// TypedString is a typed literal such as DATE '2024-01-01'.
type TypedString struct {
	Type  string
	Value string
}

// Interval is INTERVAL 'n' unit.
type Interval struct {
	Value Expr
	Unit  string
}

func (*Identifier) Kind() ExprKind         { return KindIdentifier }
func (*CompoundIdentifier) Kind() ExprKind { return KindCompoundIdentifier }
func (*BinaryExpr) Kind() ExprKind         { return KindBinary }
func (*FuncCall) Kind() ExprKind           { return KindFunction }
func (*Nested) Kind() ExprKind             { return KindNested }
func (*Literal) Kind() ExprKind            { return KindLiteral }
func (*UnaryExpr) Kind() ExprKind          { return KindUnary }
func (*CaseExpr) Kind() ExprKind           { return KindCase }
func (*CastExpr) Kind() ExprKind           { return KindCast }
func (*InList) Kind() ExprKind             { return KindInList }
func (*InSubquery) Kind() ExprKind         { return KindInSubquery }
func (*Between) Kind() ExprKind            { return KindBetween }
func (*IsNull) Kind() ExprKind             { return KindIsNull }
func (*Like) Kind() ExprKind               { return KindLike }
func (*Subquery) Kind() ExprKind           { return KindSubquery }
func (*Exists) Kind() ExprKind             { return KindExists }
func (*TypedString) Kind() ExprKind        { return KindTypedString }
func (*Interval) Kind() ExprKind           { return KindInterval }

// ---------- Function arguments ----------

// FuncArg is one argument of a function call.
type FuncArg interface {
	funcArgNode()
}

// ExprArg is a positional expression argument.
type ExprArg struct {
	Expr Expr
}

// WildcardArg is * or t.* as an argument, as in COUNT(*).
type WildcardArg struct {
	Qualifier []string
}

// NamedArg is name => value.
type NamedArg struct {
	Name  string
	Value Expr
}

func (*ExprArg) funcArgNode()     {}
func (*WildcardArg) funcArgNode() {}
func (*NamedArg) funcArgNode()    {}

// ---------- Windows ----------

// WindowSpec is the body of an OVER clause. When Name is set and nothing
// else is, the call refers to a named window.
type WindowSpec struct {
	Name        string
	PartitionBy []Expr
	OrderBy     []OrderByItem
	Frame       *WindowFrame
}

// WindowFrame is ROWS|RANGE|GROUPS BETWEEN start AND end.
type WindowFrame struct {
	Units string
	Start FrameBound
	End   *FrameBound
}

// FrameBound is one end of a window frame. Bound is one of
// "UNBOUNDED PRECEDING", "UNBOUNDED FOLLOWING", "CURRENT ROW",
// "PRECEDING" or "FOLLOWING"; Offset is set for the last two.
type FrameBound struct {
	Bound  string
	Offset Expr
}
