package lineage

import (
	"fmt"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// discover registers every table a FROM clause reads, in textual order,
// binds their names in block and adds an edge from each into consumer.
func (b *builder) discover(from []*ast.TableWithJoins, consumer string, block *scope, path string) []TableEntity {
	var found []TableEntity
	for _, twj := range from {
		found = b.discoverTableWithJoins(found, twj, consumer, block, path)
	}
	return found
}

func (b *builder) discoverTableWithJoins(found []TableEntity, twj *ast.TableWithJoins, consumer string, block *scope, path string) []TableEntity {
	if twj == nil {
		return found
	}
	found = b.discoverFactor(found, twj.Relation, consumer, block, path)
	for _, j := range twj.Joins {
		found = b.discoverFactor(found, j.Relation, consumer, block, path)
	}
	return found
}

func (b *builder) discoverFactor(found []TableEntity, tf ast.TableFactor, consumer string, block *scope, path string) []TableEntity {
	switch t := tf.(type) {
	case *ast.TableName:
		return b.discoverTableName(found, t, consumer, block, path)

	case *ast.DerivedTable:
		if t.Alias == "" {
			b.diagnose(Diagnostic{
				Kind:    UnaliasedDerivedTable,
				Context: consumer,
				Subject: SubqueryName,
				Message: fmt.Sprintf("subquery in FROM of %s has no alias and is skipped", consumer),
			})
			b.fail(fmt.Errorf("%w in %s", ErrUnaliasedDerivedTable, consumer))
			return found
		}
		key := b.g.register(TableEntity{
			Key:           t.Alias,
			CanonicalName: SubqueryName,
			Alias:         t.Alias,
			Kind:          KindDerivedSubquery,
			Scope:         path,
		}, b.opts.keys, path)
		block.bind(t.Alias, key)
		block.reference(key)
		b.g.addEdge(key, consumer)
		if t.Query != nil {
			b.buildQuery(t.Query, key, block, childPath(path, key))
		}
		return append(found, b.g.tables[key])

	case *ast.NestedJoin:
		return b.discoverTableWithJoins(found, t.Table, consumer, block, path)

	case *ast.TableFunction:
		return b.discoverBaseTable(found, ast.JoinParts(t.Name), nil, t.Alias, consumer, block, path)
	}
	return found
}

// discoverTableName handles a named reference, which is either a CTE in
// scope or a base table.
func (b *builder) discoverTableName(found []TableEntity, t *ast.TableName, consumer string, block *scope, path string) []TableEntity {
	name := t.Name()

	if len(t.Parts) == 1 {
		if key, ok := block.lookupCTE(name); ok {
			if t.Alias != "" {
				block.bind(t.Alias, key)
			} else {
				block.bind(name, key)
			}
			block.reference(key)
			b.g.addEdge(key, consumer)
			return append(found, b.g.tables[key])
		}
	}

	return b.discoverBaseTable(found, name, t.Parts, t.Alias, consumer, block, path)
}

func (b *builder) discoverBaseTable(found []TableEntity, name string, parts []string, alias, consumer string, block *scope, path string) []TableEntity {
	preferred := alias
	if preferred == "" {
		preferred = name
	}

	key := b.g.register(TableEntity{
		Key:           preferred,
		CanonicalName: name,
		Alias:         alias,
		Kind:          KindBaseTable,
		Scope:         path,
	}, b.opts.keys, path)

	if alias != "" {
		block.bind(alias, key)
	} else {
		block.bind(name, key)
		// sales.orders is also reachable as orders
		if len(parts) > 1 {
			block.bind(parts[len(parts)-1], key)
		}
	}
	block.reference(key)

	b.g.addEdge(key, consumer)
	return append(found, b.g.tables[key])
}
