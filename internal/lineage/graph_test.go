package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layeredSQL = `
WITH stg_orders AS (SELECT id, customer_id, amount FROM raw_orders),
     stg_customers AS (SELECT id, name FROM raw_customers),
     joined AS (
         SELECT o.id, c.name, o.amount
         FROM stg_orders o
         JOIN stg_customers c ON c.id = o.customer_id
     )
SELECT name, sum(amount) AS total FROM joined GROUP BY name`

func TestGraph_Navigation(t *testing.T) {
	g := mustBuild(t, layeredSQL)

	assert.Equal(t, []string{"stg_orders", "stg_customers"}, keysOf(g.IncomingDependencies("joined")))
	assert.Equal(t, []string{"joined"}, keysOf(g.Dependents("stg_orders")))
	assert.Empty(t, g.IncomingDependencies("raw_orders"))
	assert.Empty(t, g.Dependents(DefaultResultKey))

	assert.Equal(t,
		[]string{"raw_customers", "raw_orders", "stg_customers", "stg_orders"},
		g.Upstream("joined"))
	assert.Equal(t,
		[]string{DefaultResultKey, "joined", "stg_orders"},
		g.Downstream("raw_orders"))
}

func TestGraph_TopologicalOrderTieBreak(t *testing.T) {
	g := mustBuild(t, layeredSQL)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"raw_customers",
		"raw_orders",
		"stg_customers",
		"stg_orders",
		"joined",
		DefaultResultKey,
	}, order)
}

func TestGraph_ExecutionLevels(t *testing.T) {
	g := mustBuild(t, layeredSQL)

	levels, err := g.ExecutionLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"raw_customers", "raw_orders"},
		{"stg_customers", "stg_orders"},
		{"joined"},
		{DefaultResultKey},
	}, levels)
}

func TestGraph_AggregateResolvesAgainstSoleTable(t *testing.T) {
	g := mustBuild(t, layeredSQL)

	total := findColumn(g.Columns(), DefaultResultKey, "total")
	require.NotNil(t, total)
	assert.Equal(t, "sum(amount)", total.SourceExpression)
	assert.Equal(t, []string{"amount"}, total.Dependencies)
	assert.True(t, total.IsResolved())
}

func TestGraph_AccessorsReturnCopies(t *testing.T) {
	g := mustBuild(t, `SELECT o.id FROM orders o`)

	cols := g.Columns()
	cols[0].Dependencies[0] = "mutated"
	assert.Equal(t, []string{"o.id"}, g.Columns()[0].Dependencies)

	keys := g.Keys()
	keys[0] = "mutated"
	assert.Equal(t, DefaultResultKey, g.Keys()[0])

	edges := g.Edges()
	edges[0].Producer = "mutated"
	assert.Equal(t, "o", g.Edges()[0].Producer)
}

func TestGraph_CheckEdgesReportsUnknownEndpoints(t *testing.T) {
	g := newGraph(DefaultResultKey)
	g.register(TableEntity{Key: DefaultResultKey, CanonicalName: DefaultResultKey, Kind: KindResult}, KeysScoped, "")
	g.addEdge("ghost", DefaultResultKey)
	g.checkEdges()

	diags := g.DiagnosticsOf(UnresolvedReference)
	require.Len(t, diags, 1)
	assert.Equal(t, "ghost", diags[0].Subject)

	// the dangling edge is tolerated and left out of ordering
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultResultKey}, order)
}

func TestParseKeyStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    KeyStrategy
		wantErr bool
	}{
		{"", KeysScoped, false},
		{"scoped", KeysScoped, false},
		{"flat", KeysFlat, false},
		{"nested", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKeyStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "base_table", KindBaseTable.String())
	assert.Equal(t, "derived_subquery", KindDerivedSubquery.String())
	assert.Equal(t, "unknown", TableKind(42).String())

	text, err := UnresolvedReference.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "unresolved_reference", string(text))
}
