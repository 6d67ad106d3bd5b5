package lineage

import "github.com/leapstack-labs/querygraph/pkg/ast"

// Dependencies returns the identifiers an expression reads, in the order
// they are first encountered. Compound identifiers are kept whole
// ("o.amount"). Duplicates are kept.
//
// Only identifiers, compound identifiers, binary expressions, function call
// positional arguments and parenthesized expressions are walked. Every
// other kind yields nothing: CASE, CAST, unary operators, IN, BETWEEN,
// IS NULL, LIKE, subqueries, literals, window OVER and FILTER clauses.
func Dependencies(e ast.Expr) []string {
	return appendDependencies(nil, e)
}

func appendDependencies(deps []string, e ast.Expr) []string {
	switch n := e.(type) {
	case nil:
		return deps
	case *ast.Identifier:
		return append(deps, n.Name)
	case *ast.CompoundIdentifier:
		return append(deps, ast.JoinParts(n.Parts))
	case *ast.BinaryExpr:
		deps = appendDependencies(deps, n.Left)
		return appendDependencies(deps, n.Right)
	case *ast.FuncCall:
		for _, arg := range n.Args {
			if a, ok := arg.(*ast.ExprArg); ok {
				deps = appendDependencies(deps, a.Expr)
			}
		}
		return deps
	case *ast.Nested:
		return appendDependencies(deps, n.Expr)
	case *ast.Literal, *ast.UnaryExpr, *ast.CaseExpr, *ast.CastExpr,
		*ast.InList, *ast.InSubquery, *ast.Between, *ast.IsNull, *ast.Like,
		*ast.Subquery, *ast.Exists, *ast.TypedString, *ast.Interval:
		// not traced
		return deps
	default:
		return deps
	}
}
