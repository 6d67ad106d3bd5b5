package lineage

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// project records one ColumnLineage per projection item, in order.
func (b *builder) project(context string, items []ast.SelectItem, block *scope) []ColumnLineage {
	var cols []ColumnLineage
	for _, item := range items {
		c := ColumnLineage{Context: context}

		switch it := item.(type) {
		case *ast.UnnamedExpr:
			c.SourceExpression = ast.Render(it.Expr)
			c.OutputName = c.SourceExpression
			c.Dependencies = Dependencies(it.Expr)
		case *ast.AliasedExpr:
			c.SourceExpression = ast.Render(it.Expr)
			c.OutputName = it.Alias
			c.Dependencies = Dependencies(it.Expr)
		case *ast.Wildcard:
			c.SourceExpression = "*"
			c.OutputName = "*"
		case *ast.QualifiedWildcard:
			c.SourceExpression = ast.JoinParts(it.Qualifier) + ".*"
			c.OutputName = "*"
		default:
			continue
		}

		c.Unresolved = b.unresolved(c.Dependencies, context, block)
		b.g.addColumn(c)
		cols = append(cols, c)
	}
	return cols
}

// unresolved returns the dependencies that no visible table accounts for
// and reports each distinct one once.
func (b *builder) unresolved(deps []string, context string, block *scope) []string {
	var out []string
	reported := make(map[string]bool)
	for _, dep := range deps {
		if resolves(dep, block) {
			continue
		}
		out = append(out, dep)
		if reported[dep] {
			continue
		}
		reported[dep] = true
		b.diagnose(Diagnostic{
			Kind:    UnresolvedReference,
			Context: context,
			Subject: dep,
			Message: fmt.Sprintf("column %q does not resolve to a table visible in %s", dep, context),
		})
	}
	return out
}

// resolves reports whether dep can be attributed to a table. For a.b.c the
// qualifiers a.b and a are tried in turn, so struct field access on an
// aliased table still resolves.
func resolves(dep string, block *scope) bool {
	qualifier := dep
	for {
		i := strings.LastIndexByte(qualifier, '.')
		if i < 0 {
			break
		}
		qualifier = qualifier[:i]
		if _, ok := block.resolve(qualifier); ok {
			return true
		}
	}
	if strings.Contains(dep, ".") {
		return false
	}
	_, ok := block.soleTable()
	return ok
}
