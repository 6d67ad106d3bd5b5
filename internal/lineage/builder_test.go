package lineage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querygraph/pkg/parser"
)

func mustBuild(t *testing.T, sql string, opts ...Option) *Graph {
	t.Helper()
	q, err := parser.Parse(sql)
	require.NoError(t, err, "parse %q", sql)
	g, err := Build(q, opts...)
	require.NoError(t, err)
	return g
}

func findColumn(cols []ColumnLineage, context, name string) *ColumnLineage {
	for i := range cols {
		if cols[i].Context == context && cols[i].OutputName == name {
			return &cols[i]
		}
	}
	return nil
}

func TestBuild_CTEExample(t *testing.T) {
	g := mustBuild(t, `WITH s AS (SELECT c.id FROM customers c) SELECT s.id FROM s`)

	assert.Equal(t, []string{"s", "c", DefaultResultKey}, g.Keys())

	s, ok := g.Table("s")
	require.True(t, ok)
	assert.Equal(t, KindCTE, s.Kind)
	assert.Equal(t, "", s.Scope)

	c, ok := g.Table("c")
	require.True(t, ok)
	assert.Equal(t, KindBaseTable, c.Kind)
	assert.Equal(t, "customers", c.CanonicalName)
	assert.Equal(t, "c", c.Alias)
	assert.Equal(t, "s", c.Scope)

	result, ok := g.Table(DefaultResultKey)
	require.True(t, ok)
	assert.Equal(t, KindResult, result.Kind)

	assert.Equal(t, []Edge{
		{Producer: "c", Consumer: "s"},
		{Producer: "s", Consumer: DefaultResultKey},
	}, g.Edges())

	cols := g.ColumnsFor("s")
	require.Len(t, cols, 1)
	assert.Equal(t, "c.id", cols[0].OutputName)
	assert.Equal(t, []string{"c.id"}, cols[0].Dependencies)
	assert.True(t, cols[0].IsResolved())

	final := findColumn(g.Columns(), DefaultResultKey, "s.id")
	require.NotNil(t, final)
	assert.Equal(t, []string{"s.id"}, final.Dependencies)
	assert.True(t, final.IsResolved())

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "s", DefaultResultKey}, order)
	assert.Empty(t, g.Diagnostics())
}

func TestBuild_SingleCTEOrdersBaseTablesFirst(t *testing.T) {
	g := mustBuild(t, `
		WITH a AS (
			SELECT o.id, p.amount
			FROM orders o
			JOIN payments p ON p.order_id = o.id
		)
		SELECT * FROM a`)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, len(g.Keys()))

	pos := make(map[string]int)
	for i, k := range order {
		pos[k] = i
	}
	for _, e := range g.Edges() {
		assert.Less(t, pos[e.Producer], pos[e.Consumer], "edge %s -> %s", e.Producer, e.Consumer)
	}
	assert.Equal(t, []string{"o", "p", "a", DefaultResultKey}, order)
}

func TestBuild_CTEChainIsNotACycle(t *testing.T) {
	g := mustBuild(t, `
		WITH y AS (SELECT id FROM base),
		     x AS (SELECT id FROM y)
		SELECT id FROM x`)

	assert.Contains(t, g.Edges(), Edge{Producer: "y", Consumer: "x"})
	assert.Empty(t, g.Cycles())

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "y", "x", DefaultResultKey}, order)
}

func TestBuild_ForwardReferenceIsBaseTable(t *testing.T) {
	// p reads q before q is declared, so q is a base table there.
	sql := `
		WITH p AS (SELECT id FROM q),
		     q AS (SELECT id FROM p)
		SELECT id FROM q`

	t.Run("scoped keeps both", func(t *testing.T) {
		g := mustBuild(t, sql)

		base, ok := g.Table("q")
		require.True(t, ok)
		assert.Equal(t, KindBaseTable, base.Kind)

		cte, ok := g.Table(DefaultResultKey + "/q")
		require.True(t, ok)
		assert.Equal(t, KindCTE, cte.Kind)
		assert.Equal(t, "q", cte.CanonicalName)

		_, err := g.TopologicalOrder()
		require.NoError(t, err)
	})

	t.Run("flat overwrite creates cycle", func(t *testing.T) {
		g := mustBuild(t, sql, WithKeyStrategy(KeysFlat))

		_, err := g.TopologicalOrder()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCycleDetected))

		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, []string{"p", "q"}, cycle.Keys)
	})
}

func TestBuild_SelfReferencingCTEIsCycle(t *testing.T) {
	g := mustBuild(t, `WITH RECURSIVE r AS (SELECT n FROM r) SELECT n FROM r`)

	assert.Contains(t, g.Edges(), Edge{Producer: "r", Consumer: "r"})

	_, err := g.TopologicalOrder()
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"r"}, cycle.Keys)
}

func TestBuild_Wildcards(t *testing.T) {
	g := mustBuild(t, `SELECT * FROM t`)

	cols := g.Columns()
	require.Len(t, cols, 1)
	assert.Equal(t, "*", cols[0].OutputName)
	assert.Equal(t, "*", cols[0].SourceExpression)
	assert.Empty(t, cols[0].Dependencies)
	assert.Empty(t, g.Diagnostics())

	g = mustBuild(t, `SELECT o.*, c.name FROM orders o JOIN customers c ON c.id = o.customer_id`)
	cols = g.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "*", cols[0].OutputName)
	assert.Equal(t, "o.*", cols[0].SourceExpression)
	assert.Empty(t, cols[0].Dependencies)
	assert.Equal(t, "c.name", cols[1].OutputName)
}

func TestBuild_Projections(t *testing.T) {
	g := mustBuild(t, `
		SELECT
			o.amount * o.qty AS total,
			upper(c.name),
			CASE WHEN o.amount > 0 THEN 1 ELSE 0 END AS positive,
			(o.amount)
		FROM orders o
		JOIN customers c ON c.id = o.customer_id`)

	cols := g.ColumnsFor(DefaultResultKey)
	require.Len(t, cols, 4)

	assert.Equal(t, "total", cols[0].OutputName)
	assert.Equal(t, "o.amount * o.qty", cols[0].SourceExpression)
	assert.Equal(t, []string{"o.amount", "o.qty"}, cols[0].Dependencies)

	assert.Equal(t, "upper(c.name)", cols[1].OutputName)
	assert.Equal(t, []string{"c.name"}, cols[1].Dependencies)

	// CASE is not traced
	assert.Equal(t, "positive", cols[2].OutputName)
	assert.Empty(t, cols[2].Dependencies)

	assert.Equal(t, "(o.amount)", cols[3].OutputName)
	assert.Equal(t, []string{"o.amount"}, cols[3].Dependencies)
}

func TestBuild_NestedSignsDoNotFormComment(t *testing.T) {
	g := mustBuild(t, `SELECT - - - 1, - -o.amount FROM orders o`)

	cols := g.ColumnsFor(DefaultResultKey)
	require.Len(t, cols, 2)
	for _, c := range cols {
		assert.NotContains(t, c.SourceExpression, "--")
		assert.NotContains(t, c.OutputName, "--")
	}
	assert.Equal(t, []string{"o.amount"}, cols[1].Dependencies)
}

func TestBuild_AliasIsNotADependency(t *testing.T) {
	g := mustBuild(t, `SELECT amount AS revenue FROM orders`)
	cols := g.Columns()
	require.Len(t, cols, 1)
	assert.Equal(t, "revenue", cols[0].OutputName)
	assert.Equal(t, []string{"amount"}, cols[0].Dependencies)
	assert.True(t, cols[0].IsResolved())
}

func TestBuild_DerivedTable(t *testing.T) {
	g := mustBuild(t, `
		SELECT d.total
		FROM (SELECT sum(amount) AS total FROM orders) d`)

	d, ok := g.Table("d")
	require.True(t, ok)
	assert.Equal(t, KindDerivedSubquery, d.Kind)
	assert.Equal(t, SubqueryName, d.CanonicalName)

	orders, ok := g.Table("orders")
	require.True(t, ok)
	assert.Equal(t, "d", orders.Scope)

	assert.ElementsMatch(t, []Edge{
		{Producer: "d", Consumer: DefaultResultKey},
		{Producer: "orders", Consumer: "d"},
	}, g.Edges())

	inner := g.ColumnsFor("d")
	require.Len(t, inner, 1)
	assert.Equal(t, "total", inner[0].OutputName)
	assert.Equal(t, []string{"amount"}, inner[0].Dependencies)
	assert.True(t, inner[0].IsResolved())

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "d", DefaultResultKey}, order)
}

func TestBuild_UnaliasedDerivedTableSkipped(t *testing.T) {
	sql := `SELECT * FROM (SELECT id FROM orders)`

	g := mustBuild(t, sql)
	assert.Equal(t, []string{DefaultResultKey}, g.Keys())
	assert.Empty(t, g.Edges())

	diags := g.DiagnosticsOf(UnaliasedDerivedTable)
	require.Len(t, diags, 1)
	assert.Equal(t, DefaultResultKey, diags[0].Context)

	q, err := parser.Parse(sql)
	require.NoError(t, err)
	_, err = Build(q, WithStrict(true))
	assert.ErrorIs(t, err, ErrUnaliasedDerivedTable)
}

func TestBuild_SetOperations(t *testing.T) {
	sql := `SELECT id FROM a UNION ALL SELECT id FROM b`

	g := mustBuild(t, sql)
	assert.Equal(t, []string{DefaultResultKey}, g.Keys())
	assert.Empty(t, g.Columns())

	diags := g.DiagnosticsOf(UnsupportedQueryShape)
	require.Len(t, diags, 1)
	assert.Equal(t, "set operation UNION", diags[0].Subject)

	q, err := parser.Parse(sql)
	require.NoError(t, err)
	_, err = Build(q, WithStrict(true))
	assert.ErrorIs(t, err, ErrUnsupportedQueryShape)
}

func TestBuild_SetOperationInCTE(t *testing.T) {
	g := mustBuild(t, `
		WITH u AS (SELECT id FROM a UNION SELECT id FROM b)
		SELECT id FROM u`)

	u, ok := g.Table("u")
	require.True(t, ok)
	assert.Equal(t, KindCTE, u.Kind)
	assert.Equal(t, []Edge{{Producer: "u", Consumer: DefaultResultKey}}, g.Edges())

	diags := g.DiagnosticsOf(UnsupportedQueryShape)
	require.Len(t, diags, 1)
	assert.Equal(t, "u", diags[0].Context)
}

func TestBuild_Values(t *testing.T) {
	g := mustBuild(t, `VALUES (1, 2), (3, 4)`)
	require.Len(t, g.DiagnosticsOf(UnsupportedQueryShape), 1)
}

func TestBuild_NestedQueryBody(t *testing.T) {
	g := mustBuild(t, `(SELECT id FROM orders)`)
	assert.Equal(t, []Edge{{Producer: "orders", Consumer: DefaultResultKey}}, g.Edges())
	assert.Len(t, g.Columns(), 1)
}

func TestBuild_NilQuery(t *testing.T) {
	g, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultResultKey}, g.Keys())
	assert.Len(t, g.DiagnosticsOf(UnsupportedQueryShape), 1)

	_, err = Build(nil, WithStrict(true))
	assert.ErrorIs(t, err, ErrUnsupportedQueryShape)
}

func TestBuild_KeyCollisions(t *testing.T) {
	sql := `
		WITH a AS (SELECT t.id FROM orders t),
		     b AS (SELECT t.id FROM payments t)
		SELECT a.id FROM a JOIN b ON a.id = b.id`

	t.Run("scoped", func(t *testing.T) {
		g := mustBuild(t, sql)

		first, ok := g.Table("t")
		require.True(t, ok)
		assert.Equal(t, "orders", first.CanonicalName)

		second, ok := g.Table("b/t")
		require.True(t, ok)
		assert.Equal(t, "payments", second.CanonicalName)
		assert.Equal(t, "b", second.Scope)

		assert.Contains(t, g.Edges(), Edge{Producer: "t", Consumer: "a"})
		assert.Contains(t, g.Edges(), Edge{Producer: "b/t", Consumer: "b"})

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Len(t, order, 5)
	})

	t.Run("flat", func(t *testing.T) {
		g := mustBuild(t, sql, WithKeyStrategy(KeysFlat))

		only, ok := g.Table("t")
		require.True(t, ok)
		assert.Equal(t, "payments", only.CanonicalName)
		assert.Len(t, g.Keys(), 4)
	})
}

func TestBuild_RepeatedTableReusesKey(t *testing.T) {
	g := mustBuild(t, `
		WITH a AS (SELECT id FROM orders),
		     b AS (SELECT id FROM orders)
		SELECT a.id FROM a JOIN b ON a.id = b.id`)

	assert.Equal(t, []string{"a", "orders", "b", DefaultResultKey}, g.Keys())
	assert.Equal(t, []string{"a", "b"}, keysOf(g.Dependents("orders")))
}

func TestBuild_QualifiedCollisionCounter(t *testing.T) {
	g := mustBuild(t, `
		SELECT x.id
		FROM orders x
		JOIN payments x ON true
		JOIN refunds x ON true`)

	assert.Equal(t, []string{
		DefaultResultKey,
		"x",
		DefaultResultKey + "/x",
		DefaultResultKey + "/x#2",
	}, g.Keys())
}

func TestBuild_ResultKeyIsReserved(t *testing.T) {
	g := mustBuild(t, `WITH __result__ AS (SELECT 1 AS one) SELECT one FROM __result__`)

	result, ok := g.Table(DefaultResultKey)
	require.True(t, ok)
	assert.Equal(t, KindResult, result.Kind)

	cte, ok := g.Table(DefaultResultKey + "/__result__")
	require.True(t, ok)
	assert.Equal(t, KindCTE, cte.Kind)
	assert.Equal(t, []Edge{{Producer: DefaultResultKey + "/__result__", Consumer: DefaultResultKey}}, g.Edges())
}

func TestBuild_CustomResultKey(t *testing.T) {
	g := mustBuild(t, `SELECT id FROM orders`, WithResultKey("final"))
	assert.Equal(t, "final", g.ResultKey())
	assert.Equal(t, []Edge{{Producer: "orders", Consumer: "final"}}, g.Edges())
}

func TestBuild_UnresolvedReferences(t *testing.T) {
	g := mustBuild(t, `
		SELECT o.id, z.name, amount
		FROM orders o
		JOIN customers c ON c.id = o.customer_id`)

	cols := g.Columns()
	require.Len(t, cols, 3)
	assert.True(t, cols[0].IsResolved())
	assert.Equal(t, []string{"z.name"}, cols[1].Unresolved)
	// two tables in scope, so an unqualified column is ambiguous
	assert.Equal(t, []string{"amount"}, cols[2].Unresolved)

	diags := g.DiagnosticsOf(UnresolvedReference)
	require.Len(t, diags, 2)
	assert.Equal(t, "z.name", diags[0].Subject)
	assert.Equal(t, "amount", diags[1].Subject)
}

func TestBuild_SelfJoinLeavesBareColumnUnresolved(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"cte joined twice", `WITH s AS (SELECT id FROM t) SELECT id FROM s a JOIN s b ON a.id = b.id`},
		{"unaliased table joined twice", `SELECT id FROM orders JOIN orders ON 1 = 1`},
		{"aliased table joined twice", `SELECT id FROM t a JOIN t b ON a.id = b.id`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t, tt.sql)
			final := g.ColumnsFor(DefaultResultKey)
			require.Len(t, final, 1)
			assert.Equal(t, []string{"id"}, final[0].Unresolved)
		})
	}

	g := mustBuild(t, `WITH s AS (SELECT id FROM t) SELECT id FROM s`)
	final := g.ColumnsFor(DefaultResultKey)
	require.Len(t, final, 1)
	assert.True(t, final[0].IsResolved(), "a single factor still resolves bare columns")
}

func TestBuild_QualifiedNameResolution(t *testing.T) {
	g := mustBuild(t, `SELECT orders.id, sales.orders.amount FROM sales.orders`)

	cols := g.Columns()
	require.Len(t, cols, 2)
	assert.True(t, cols[0].IsResolved())
	assert.True(t, cols[1].IsResolved())

	e, ok := g.Table("sales.orders")
	require.True(t, ok)
	assert.Equal(t, "sales.orders", e.CanonicalName)
}

func TestBuild_StructFieldResolvesThroughAlias(t *testing.T) {
	g := mustBuild(t, `SELECT c.address.city FROM customers c`)
	cols := g.Columns()
	require.Len(t, cols, 1)
	assert.Equal(t, []string{"c.address.city"}, cols[0].Dependencies)
	assert.True(t, cols[0].IsResolved())
}

func TestBuild_CTEAliasBinding(t *testing.T) {
	g := mustBuild(t, `
		WITH s AS (SELECT id FROM customers)
		SELECT x.id FROM s AS x`)

	assert.Equal(t, []string{"s", "customers", DefaultResultKey}, g.Keys())
	assert.Contains(t, g.Edges(), Edge{Producer: "s", Consumer: DefaultResultKey})

	final := g.ColumnsFor(DefaultResultKey)
	require.Len(t, final, 1)
	assert.True(t, final[0].IsResolved())
}

func TestBuild_NestedWithShadowsOuterCTE(t *testing.T) {
	g := mustBuild(t, `
		WITH s AS (SELECT id FROM a)
		SELECT id FROM (
			WITH s AS (SELECT id FROM b)
			SELECT id FROM s
		) d`)

	inner, ok := g.Table("d/s")
	require.True(t, ok)
	assert.Equal(t, KindCTE, inner.Kind)
	assert.Contains(t, g.Edges(), Edge{Producer: "d/s", Consumer: "d"})
	assert.NotContains(t, g.Edges(), Edge{Producer: "s", Consumer: "d"})
}

func TestBuild_Deterministic(t *testing.T) {
	sql := `
		WITH a AS (SELECT o.id FROM orders o),
		     b AS (SELECT p.id FROM payments p JOIN a ON a.id = p.id)
		SELECT * FROM b JOIN a ON a.id = b.id JOIN (SELECT 1 AS one) s ON true`

	first := mustBuild(t, sql)
	second := mustBuild(t, sql)

	assert.Equal(t, first.Tables(), second.Tables())
	assert.Equal(t, first.Columns(), second.Columns())
	assert.Equal(t, first.Edges(), second.Edges())

	o1, err := first.TopologicalOrder()
	require.NoError(t, err)
	o2, err := second.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, o1, o2)
}

func TestBuild_EdgesAreUnique(t *testing.T) {
	g := mustBuild(t, `SELECT o.id FROM orders o JOIN orders o ON true`)
	assert.Equal(t, []Edge{{Producer: "o", Consumer: DefaultResultKey}}, g.Edges())
}

func keysOf(entities []TableEntity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Key
	}
	return out
}
