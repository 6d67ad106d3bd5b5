package parser_test

import (
	"testing"

	"github.com/leapstack-labs/querygraph/pkg/ast"
	"github.com/leapstack-labs/querygraph/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			name: "simple select",
			sql:  "SELECT a, b AS x FROM t",
			want: "SELECT a, b AS x FROM t",
		},
		{
			name: "bare table alias",
			sql:  "select c.id from customers c",
			want: "SELECT c.id FROM customers AS c",
		},
		{
			name: "cte",
			sql:  "WITH s AS (SELECT c.id FROM customers c) SELECT s.id FROM s",
			want: "WITH s AS (SELECT c.id FROM customers AS c) SELECT s.id FROM s",
		},
		{
			name: "left outer join",
			sql:  "SELECT * FROM a LEFT OUTER JOIN b ON a.id = b.id",
			want: "SELECT * FROM a LEFT JOIN b ON a.id = b.id",
		},
		{
			name: "derived table",
			sql:  "SELECT x FROM (SELECT 1 AS x) sub",
			want: "SELECT x FROM (SELECT 1 AS x) AS sub",
		},
		{
			name: "union all with order and limit",
			sql:  "SELECT a FROM t UNION ALL SELECT a FROM u ORDER BY a DESC LIMIT 5",
			want: "SELECT a FROM t UNION ALL SELECT a FROM u ORDER BY a DESC LIMIT 5",
		},
		{
			name: "window frame",
			sql:  "SELECT SUM(amount) OVER (PARTITION BY region ORDER BY day ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) FROM sales",
			want: "SELECT SUM(amount) OVER (PARTITION BY region ORDER BY day ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) FROM sales",
		},
		{
			name: "casts",
			sql:  "SELECT CAST(x AS decimal(10,2)), y::int FROM t",
			want: "SELECT CAST(x AS DECIMAL(10, 2)), y::INT FROM t",
		},
		{
			name: "case",
			sql:  "SELECT CASE WHEN a > 1 THEN 'x' ELSE 'y' END AS label FROM t",
			want: "SELECT CASE WHEN a > 1 THEN 'x' ELSE 'y' END AS label FROM t",
		},
		{
			name: "aggregate filter",
			sql:  "SELECT COUNT(DISTINCT user_id) FILTER (WHERE active) FROM t",
			want: "SELECT COUNT(DISTINCT user_id) FILTER (WHERE active) FROM t",
		},
		{
			name: "predicates",
			sql:  "SELECT a FROM t WHERE b NOT IN (1, 2) AND c BETWEEN 1 AND 10 AND d IS NOT NULL",
			want: "SELECT a FROM t WHERE b NOT IN (1, 2) AND c BETWEEN 1 AND 10 AND d IS NOT NULL",
		},
		{
			name: "exists",
			sql:  "SELECT * FROM t WHERE EXISTS (SELECT 1 FROM u WHERE u.id = t.id)",
			want: "SELECT * FROM t WHERE EXISTS (SELECT 1 FROM u WHERE u.id = t.id)",
		},
		{
			name: "quoted identifiers",
			sql:  `SELECT "Order Id" FROM "My Table"`,
			want: `SELECT "Order Id" FROM "My Table"`,
		},
		{
			name: "table function",
			sql:  "SELECT * FROM read_csv('data.csv') AS d",
			want: "SELECT * FROM read_csv('data.csv') AS d",
		},
		{
			name: "lateral",
			sql:  "SELECT * FROM a, LATERAL (SELECT * FROM b WHERE b.x = a.x) l",
			want: "SELECT * FROM a, LATERAL (SELECT * FROM b WHERE b.x = a.x) AS l",
		},
		{
			name: "qualified wildcard",
			sql:  "SELECT t.* FROM t",
			want: "SELECT t.* FROM t",
		},
		{
			name: "typed literals",
			sql:  "SELECT DATE '2024-01-01', INTERVAL '1' day FROM t",
			want: "SELECT DATE '2024-01-01', INTERVAL '1' DAY FROM t",
		},
		{
			name: "unary",
			sql:  "SELECT -x + 1, NOT a FROM t",
			want: "SELECT -x + 1, NOT a FROM t",
		},
		{
			name: "comments and semicolon",
			sql:  "SELECT a FROM t -- trailing\n WHERE /* inline */ b = 1;",
			want: "SELECT a FROM t WHERE b = 1",
		},
		{
			name: "nested join with using",
			sql:  "SELECT * FROM (a JOIN b USING (id))",
			want: "SELECT * FROM (a INNER JOIN b USING (id))",
		},
		{
			name: "values",
			sql:  "VALUES (1, 'a'), (2, 'b')",
			want: "VALUES (1, 'a'), (2, 'b')",
		},
		{
			name: "named window",
			sql:  "SELECT rank() OVER w FROM t WINDOW w AS (ORDER BY x)",
			want: "SELECT rank() OVER w FROM t WINDOW w AS (ORDER BY x)",
		},
		{
			name: "string concat and left function",
			sql:  "SELECT LEFT(a, 2) || b FROM t",
			want: "SELECT LEFT(a, 2) || b FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := parser.Parse(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ast.RenderQuery(q))
		})
	}
}

func TestParse_Structure(t *testing.T) {
	q, err := parser.Parse(`
		WITH monthly AS (
			SELECT DATE_TRUNC('month', o.order_date) AS month, SUM(o.amount) AS revenue
			FROM sales.orders o
			GROUP BY 1
		)
		SELECT m.month, m.revenue FROM monthly m`)
	require.NoError(t, err)

	require.NotNil(t, q.With)
	require.Len(t, q.With.CTEs, 1)
	cte := q.With.CTEs[0]
	assert.Equal(t, "monthly", cte.Name)

	inner, ok := cte.Query.Body.(*ast.Select)
	require.True(t, ok, "expected *ast.Select, got %T", cte.Query.Body)
	require.Len(t, inner.Projection, 2)

	first, ok := inner.Projection[0].(*ast.AliasedExpr)
	require.True(t, ok)
	assert.Equal(t, "month", first.Alias)
	fn, ok := first.Expr.(*ast.FuncCall)
	require.True(t, ok)
	assert.Equal(t, []string{"DATE_TRUNC"}, fn.Name)
	require.Len(t, fn.Args, 2)
	arg, ok := fn.Args[1].(*ast.ExprArg)
	require.True(t, ok)
	assert.Equal(t, &ast.CompoundIdentifier{Parts: []string{"o", "order_date"}}, arg.Expr)

	require.Len(t, inner.From, 1)
	table, ok := inner.From[0].Relation.(*ast.TableName)
	require.True(t, ok)
	assert.Equal(t, []string{"sales", "orders"}, table.Parts)
	assert.Equal(t, "o", table.Alias)
	assert.Equal(t, "sales.orders", table.Name())

	body, ok := q.Body.(*ast.Select)
	require.True(t, ok)
	require.Len(t, body.From, 1)
	assert.Equal(t, &ast.TableName{Parts: []string{"monthly"}, Alias: "m"}, body.From[0].Relation)
}

func TestParse_SetOperationPrecedence(t *testing.T) {
	q, err := parser.Parse("SELECT 1 UNION SELECT 2 INTERSECT SELECT 3")
	require.NoError(t, err)

	union, ok := q.Body.(*ast.SetOperation)
	require.True(t, ok)
	assert.Equal(t, ast.SetOpUnion, union.Op)
	assert.False(t, union.All)

	intersect, ok := union.Right.(*ast.SetOperation)
	require.True(t, ok, "INTERSECT should bind tighter than UNION")
	assert.Equal(t, ast.SetOpIntersect, intersect.Op)
}

func TestParse_FunctionArguments(t *testing.T) {
	q, err := parser.Parse("SELECT COUNT(*), COUNT(t.*), f(x => 1, y) FROM t")
	require.NoError(t, err)

	sel := q.Body.(*ast.Select)
	require.Len(t, sel.Projection, 3)

	countStar := sel.Projection[0].(*ast.UnnamedExpr).Expr.(*ast.FuncCall)
	assert.Equal(t, []ast.FuncArg{&ast.WildcardArg{}}, countStar.Args)

	countQualified := sel.Projection[1].(*ast.UnnamedExpr).Expr.(*ast.FuncCall)
	assert.Equal(t, []ast.FuncArg{&ast.WildcardArg{Qualifier: []string{"t"}}}, countQualified.Args)

	named := sel.Projection[2].(*ast.UnnamedExpr).Expr.(*ast.FuncCall)
	require.Len(t, named.Args, 2)
	assert.IsType(t, &ast.NamedArg{}, named.Args[0])
	assert.IsType(t, &ast.ExprArg{}, named.Args[1])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr string
	}{
		{
			name:    "empty",
			sql:     "   ",
			wantErr: "empty query",
		},
		{
			name:    "missing projection",
			sql:     "SELECT FROM t",
			wantErr: "expected expression",
		},
		{
			name:    "dangling where",
			sql:     "SELECT a FROM t WHERE",
			wantErr: "expected expression",
		},
		{
			name:    "trailing input",
			sql:     "SELECT a FROM t extra stuff",
			wantErr: "after end of query",
		},
		{
			name:    "unclosed paren",
			sql:     "SELECT (a FROM t",
			wantErr: "expected )",
		},
		{
			name:    "not a query",
			sql:     "DELETE FROM t",
			wantErr: "expected SELECT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.sql)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var perr *parser.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		line   int
		column int
	}{
		{"bare byte as identifier", "SELECT \xff FROM t", 1, 8},
		{"second line", "SELECT a\nFROM t\xc3", 2, 7},
		{"inside string", "SELECT 'a\x80b' FROM t", 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.sql)
			require.Error(t, err)

			var perr *parser.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Message, "invalid UTF-8")
			assert.Equal(t, tt.line, perr.Pos.Line)
			assert.Equal(t, tt.column, perr.Pos.Column)
		})
	}

	q, err := parser.Parse("SELECT 'café' AS naïve FROM t")
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestParse_LexErrorReportedFirst(t *testing.T) {
	_, err := parser.Parse("SELECT 'abc FROM t")
	require.Error(t, err)

	var lexErr *parser.LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 1, lexErr.Pos.Line)
	assert.Equal(t, 8, lexErr.Pos.Column)
}
