package parser

import (
	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// FROM clause parsing.
//
// Grammar:
//
//	from_list    → table_joins {, table_joins}
//	table_joins  → table_factor {join}
//	table_factor → LATERAL ( query ) [alias]
//	             | ( query ) [alias]
//	             | ( table_joins ) [alias]
//	             | name_parts ( args ) [alias]
//	             | name_parts [alias]
//	alias        → [AS] name [( ident_list )]
//	name_parts   → name {. name}
//	join         → [NATURAL] join_type JOIN table_factor [join_cond]
//	join_type    → [INNER] | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS
//	join_cond    → ON expr | USING ( ident_list )

// parseFromList parses the comma separated FROM list.
func (p *Parser) parseFromList() []*ast.TableWithJoins {
	var list []*ast.TableWithJoins
	for !p.failed() {
		list = append(list, p.parseTableWithJoins())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return list
}

// parseTableWithJoins parses a table factor and the joins chained onto it.
func (p *Parser) parseTableWithJoins() *ast.TableWithJoins {
	twj := &ast.TableWithJoins{Relation: p.parseTableFactor()}
	for !p.failed() && p.isJoinStart() {
		twj.Joins = append(twj.Joins, p.parseJoin())
	}
	return twj
}

// isJoinStart returns true if the current token begins a JOIN.
func (p *Parser) isJoinStart() bool {
	switch p.token.Type {
	case TOKEN_JOIN, TOKEN_INNER, TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL,
		TOKEN_CROSS, TOKEN_NATURAL:
		return true
	}
	return false
}

// parseJoin parses a single join.
func (p *Parser) parseJoin() *ast.Join {
	join := &ast.Join{Type: ast.JoinInner, Natural: p.match(TOKEN_NATURAL)}

	switch p.token.Type {
	case TOKEN_INNER:
		p.nextToken()
	case TOKEN_LEFT:
		p.nextToken()
		p.match(TOKEN_OUTER)
		join.Type = ast.JoinLeft
	case TOKEN_RIGHT:
		p.nextToken()
		p.match(TOKEN_OUTER)
		join.Type = ast.JoinRight
	case TOKEN_FULL:
		p.nextToken()
		p.match(TOKEN_OUTER)
		join.Type = ast.JoinFull
	case TOKEN_CROSS:
		p.nextToken()
		join.Type = ast.JoinCross
	}

	if !p.expect(TOKEN_JOIN) {
		return join
	}

	join.Relation = p.parseTableFactor()

	switch {
	case p.match(TOKEN_ON):
		join.On = p.parseExpression()
	case p.match(TOKEN_USING):
		if p.expect(TOKEN_LPAREN) {
			join.Using = p.parseIdentList()
			p.expect(TOKEN_RPAREN)
		}
	}

	return join
}

// parseTableFactor parses a single FROM source.
func (p *Parser) parseTableFactor() ast.TableFactor {
	if p.match(TOKEN_LATERAL) {
		if !p.expect(TOKEN_LPAREN) {
			return nil
		}
		return p.parseDerivedTable(true)
	}

	if p.match(TOKEN_LPAREN) {
		switch p.token.Type {
		case TOKEN_SELECT, TOKEN_WITH, TOKEN_VALUES, TOKEN_LPAREN:
			return p.parseDerivedTable(false)
		}
		nested := &ast.NestedJoin{Table: p.parseTableWithJoins()}
		p.expect(TOKEN_RPAREN)
		nested.Alias = p.parseTableAlias()
		return nested
	}

	parts := p.parseNameParts()
	if p.failed() {
		return nil
	}

	if p.check(TOKEN_LPAREN) {
		args, _ := p.parseFuncArgs()
		fn := &ast.TableFunction{Name: parts, Args: args}
		fn.Alias = p.parseTableAlias()
		return fn
	}

	return &ast.TableName{Parts: parts, Alias: p.parseTableAlias()}
}

// parseDerivedTable parses the rest of ( query ) [alias]; the opening paren
// has been consumed.
func (p *Parser) parseDerivedTable(lateral bool) *ast.DerivedTable {
	dt := &ast.DerivedTable{Lateral: lateral, Query: p.parseQuery()}
	p.expect(TOKEN_RPAREN)
	dt.Alias = p.parseTableAlias()
	return dt
}

// parseTableAlias parses an optional alias with an optional column list,
// which is accepted and dropped.
func (p *Parser) parseTableAlias() string {
	alias := p.parseAlias()
	if alias != "" && p.check(TOKEN_LPAREN) && isIdentToken(p.peek) {
		p.nextToken()
		p.parseIdentList()
		p.expect(TOKEN_RPAREN)
	}
	return alias
}

// parseNameParts parses name {. name}.
func (p *Parser) parseNameParts() []string {
	parts := []string{p.parseIdent()}
	for !p.failed() && p.check(TOKEN_DOT) {
		p.nextToken()
		parts = append(parts, p.parseIdent())
	}
	return parts
}
