package parser

import (
	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// Query and SELECT parsing.
//
// Grammar:
//
//	with_clause → WITH [RECURSIVE] cte {, cte}
//	cte         → name [( ident_list )] AS ( query )
//	select_list → select_item {, select_item}
//	select_item → * | name . * | expr [[AS] alias]
//	order_list  → order_item {, order_item}
//	order_item  → expr [ASC|DESC] [NULLS (FIRST|LAST)]
//	row_list    → ( expr_list ) {, ( expr_list )}

// parseQuery parses a query with its optional WITH clause and trailing
// ORDER BY / LIMIT / OFFSET.
func (p *Parser) parseQuery() *ast.Query {
	q := &ast.Query{}

	if p.check(TOKEN_WITH) {
		q.With = p.parseWithClause()
	}

	q.Body = p.parseSetExpr()

	if p.check(TOKEN_ORDER) {
		p.nextToken()
		p.expect(TOKEN_BY)
		q.OrderBy = p.parseOrderByList()
	}
	if p.match(TOKEN_LIMIT) {
		q.Limit = p.parseExpression()
	}
	if p.match(TOKEN_OFFSET) {
		q.Offset = p.parseExpression()
		// OFFSET n ROWS
		if !p.match(TOKEN_ROWS) {
			p.match(TOKEN_ROW)
		}
	}

	return q
}

// parseWithClause parses WITH [RECURSIVE] cte_list.
func (p *Parser) parseWithClause() *ast.With {
	p.expect(TOKEN_WITH)
	w := &ast.With{Recursive: p.match(TOKEN_RECURSIVE)}

	for !p.failed() {
		w.CTEs = append(w.CTEs, p.parseCTE())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return w
}

// parseCTE parses name [(cols)] AS ( query ).
func (p *Parser) parseCTE() *ast.CTE {
	cte := &ast.CTE{Name: p.parseIdent()}

	if p.match(TOKEN_LPAREN) {
		cte.Columns = p.parseIdentList()
		p.expect(TOKEN_RPAREN)
	}

	p.expect(TOKEN_AS)
	if !p.expect(TOKEN_LPAREN) {
		return cte
	}
	cte.Query = p.parseQuery()
	p.expect(TOKEN_RPAREN)
	return cte
}

// parseSetExpr parses UNION / EXCEPT chains, left associative.
func (p *Parser) parseSetExpr() ast.SetExpr {
	left := p.parseSetTerm()
	for !p.failed() {
		var op ast.SetOpType
		switch p.token.Type {
		case TOKEN_UNION:
			op = ast.SetOpUnion
		case TOKEN_EXCEPT:
			op = ast.SetOpExcept
		default:
			return left
		}
		p.nextToken()
		all := p.parseSetQuantifier()
		left = &ast.SetOperation{Op: op, All: all, Left: left, Right: p.parseSetTerm()}
	}
	return left
}

// parseSetTerm parses INTERSECT chains, which bind tighter than UNION.
func (p *Parser) parseSetTerm() ast.SetExpr {
	left := p.parseSetPrimary()
	for !p.failed() && p.check(TOKEN_INTERSECT) {
		p.nextToken()
		all := p.parseSetQuantifier()
		left = &ast.SetOperation{Op: ast.SetOpIntersect, All: all, Left: left, Right: p.parseSetPrimary()}
	}
	return left
}

func (p *Parser) parseSetQuantifier() bool {
	if p.match(TOKEN_ALL) {
		return true
	}
	p.match(TOKEN_DISTINCT)
	return false
}

// parseSetPrimary parses a SELECT, a VALUES list or a parenthesized query.
func (p *Parser) parseSetPrimary() ast.SetExpr {
	switch p.token.Type {
	case TOKEN_SELECT:
		return p.parseSelect()
	case TOKEN_VALUES:
		return p.parseValues()
	case TOKEN_LPAREN:
		p.nextToken()
		q := p.parseQuery()
		p.expect(TOKEN_RPAREN)
		return &ast.NestedQuery{Query: q}
	default:
		p.addError(p.unexpected("SELECT"))
		return nil
	}
}

// parseSelect parses a single SELECT block.
func (p *Parser) parseSelect() *ast.Select {
	p.expect(TOKEN_SELECT)
	sel := &ast.Select{}

	if p.match(TOKEN_DISTINCT) {
		sel.Distinct = true
	} else {
		p.match(TOKEN_ALL)
	}

	sel.Projection = p.parseSelectList()

	if p.match(TOKEN_FROM) {
		sel.From = p.parseFromList()
	}
	if p.match(TOKEN_WHERE) {
		sel.Where = p.parseExpression()
	}
	if p.check(TOKEN_GROUP) {
		p.nextToken()
		p.expect(TOKEN_BY)
		sel.GroupBy = p.parseExpressionList()
	}
	if p.match(TOKEN_HAVING) {
		sel.Having = p.parseExpression()
	}
	if p.match(TOKEN_WINDOW) {
		sel.Windows = p.parseNamedWindows()
	}
	if p.match(TOKEN_QUALIFY) {
		sel.Qualify = p.parseExpression()
	}

	return sel
}

// parseSelectList parses the projection.
func (p *Parser) parseSelectList() []ast.SelectItem {
	var items []ast.SelectItem
	for !p.failed() {
		if item := p.parseSelectItem(); item != nil {
			items = append(items, item)
		}
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return items
}

// parseSelectItem parses a single projection entry.
func (p *Parser) parseSelectItem() ast.SelectItem {
	if p.match(TOKEN_STAR) {
		return &ast.Wildcard{}
	}

	// name.* (3-token lookahead)
	if isIdentToken(p.token) && p.checkPeek(TOKEN_DOT) && p.checkPeek2(TOKEN_STAR) {
		qualifier := p.token.Literal
		p.nextToken() // name
		p.nextToken() // .
		p.nextToken() // *
		return &ast.QualifiedWildcard{Qualifier: []string{qualifier}}
	}

	expr := p.parseExpression()
	if expr == nil {
		return nil
	}

	if alias := p.parseAlias(); alias != "" {
		return &ast.AliasedExpr{Expr: expr, Alias: alias}
	}
	return &ast.UnnamedExpr{Expr: expr}
}

// parseOrderByList parses ORDER BY entries (after ORDER BY).
func (p *Parser) parseOrderByList() []ast.OrderByItem {
	var items []ast.OrderByItem
	for !p.failed() {
		item := ast.OrderByItem{Expr: p.parseExpression()}

		if p.match(TOKEN_DESC) {
			item.Desc = true
		} else {
			p.match(TOKEN_ASC)
		}

		if p.match(TOKEN_NULLS) {
			first := p.check(TOKEN_FIRST)
			if !first && !p.check(TOKEN_LAST) {
				p.addError(p.unexpected("FIRST or LAST"))
				return items
			}
			p.nextToken()
			item.NullsFirst = &first
		}

		items = append(items, item)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return items
}

// parseValues parses VALUES (..), (..).
func (p *Parser) parseValues() *ast.Values {
	p.expect(TOKEN_VALUES)
	v := &ast.Values{}
	for !p.failed() {
		if !p.expect(TOKEN_LPAREN) {
			break
		}
		v.Rows = append(v.Rows, p.parseExpressionList())
		p.expect(TOKEN_RPAREN)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return v
}

// parseExpressionList parses expr {, expr}.
func (p *Parser) parseExpressionList() []ast.Expr {
	var exprs []ast.Expr
	for !p.failed() {
		exprs = append(exprs, p.parseExpression())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return exprs
}
