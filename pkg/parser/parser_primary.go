package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// Primary expression parsing.
//
// Grammar:
//
//	primary   → literal | name_parts | func_call | ( expr ) | ( query )
//	          | CASE ... END | CAST ( expr AS type ) | EXISTS ( query )
//	          | INTERVAL primary [unit] | type_name 'string'
//	func_call → name_parts ( [DISTINCT|ALL] [arg {, arg}] )
//	            [FILTER ( WHERE expr )] [OVER window]
//	arg       → * | name . * | name => expr | expr

// typedLiteralTypes are the type names accepted before a string literal.
var typedLiteralTypes = map[string]bool{
	"DATE":        true,
	"TIME":        true,
	"TIMESTAMP":   true,
	"TIMESTAMPTZ": true,
}

// parsePrimary parses a primary expression.
func (p *Parser) parsePrimary() ast.Expr {
	switch p.token.Type {
	case TOKEN_NUMBER:
		lit := &ast.Literal{Type: ast.LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_STRING:
		lit := &ast.Literal{Type: ast.LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_TRUE, TOKEN_FALSE:
		lit := &ast.Literal{Type: ast.LiteralBool, Value: strings.ToUpper(p.token.Literal)}
		p.nextToken()
		return lit

	case TOKEN_NULL:
		p.nextToken()
		return &ast.Literal{Type: ast.LiteralNull, Value: "NULL"}

	case TOKEN_LPAREN:
		return p.parseParenExpr()

	case TOKEN_CASE:
		return p.parseCaseExpr()

	case TOKEN_CAST:
		return p.parseCastExpr()

	case TOKEN_EXISTS:
		p.nextToken()
		if !p.expect(TOKEN_LPAREN) {
			return nil
		}
		q := p.parseQuery()
		p.expect(TOKEN_RPAREN)
		return &ast.Exists{Query: q}

	case TOKEN_INTERVAL:
		return p.parseInterval()

	case TOKEN_LEFT, TOKEN_RIGHT:
		// LEFT(s, n) / RIGHT(s, n) string functions
		if p.checkPeek(TOKEN_LPAREN) {
			name := p.token.Literal
			p.nextToken()
			return p.parseFuncCall([]string{name})
		}
	}

	if isIdentToken(p.token) {
		return p.parseIdentifierExpr()
	}

	if !p.failed() {
		p.addError(fmt.Sprintf(ErrExpectedExpression, p.describe(p.token)))
	}
	return nil
}

// parseIdentifierExpr parses a column reference, a typed literal or a
// function call.
func (p *Parser) parseIdentifierExpr() ast.Expr {
	if !p.token.Quoted && p.checkPeek(TOKEN_STRING) && typedLiteralTypes[strings.ToUpper(p.token.Literal)] {
		typ := strings.ToUpper(p.token.Literal)
		p.nextToken()
		value := p.token.Literal
		p.nextToken()
		return &ast.TypedString{Type: typ, Value: value}
	}

	parts := []string{p.token.Literal}
	p.nextToken()
	for p.check(TOKEN_DOT) && isIdentToken(p.peek) {
		p.nextToken()
		parts = append(parts, p.token.Literal)
		p.nextToken()
	}

	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(parts)
	}

	if len(parts) == 1 {
		return &ast.Identifier{Name: parts[0]}
	}
	return &ast.CompoundIdentifier{Parts: parts}
}

// parseParenExpr parses a parenthesized expression or scalar subquery.
func (p *Parser) parseParenExpr() ast.Expr {
	p.expect(TOKEN_LPAREN)

	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		q := p.parseQuery()
		p.expect(TOKEN_RPAREN)
		return &ast.Subquery{Query: q}
	}

	inner := p.parseExpression()
	p.expect(TOKEN_RPAREN)
	if inner == nil {
		return nil
	}
	return &ast.Nested{Expr: inner}
}

// parseFuncCall parses the argument list and trailing clauses of a call
// whose name has been consumed.
func (p *Parser) parseFuncCall(name []string) ast.Expr {
	fn := &ast.FuncCall{Name: name}
	fn.Args, fn.Distinct = p.parseFuncArgs()

	if p.check(TOKEN_FILTER) && p.checkPeek(TOKEN_LPAREN) {
		p.nextToken()
		p.nextToken()
		p.expect(TOKEN_WHERE)
		fn.Filter = p.parseExpression()
		p.expect(TOKEN_RPAREN)
	}

	if p.match(TOKEN_OVER) {
		fn.Over = p.parseOverClause()
	}

	return fn
}

// parseFuncArgs parses ( [DISTINCT|ALL] args ) and reports DISTINCT.
func (p *Parser) parseFuncArgs() ([]ast.FuncArg, bool) {
	if !p.expect(TOKEN_LPAREN) {
		return nil, false
	}

	distinct := p.match(TOKEN_DISTINCT)
	if !distinct {
		p.match(TOKEN_ALL)
	}

	var args []ast.FuncArg
	if p.match(TOKEN_RPAREN) {
		return args, distinct
	}

	for !p.failed() {
		args = append(args, p.parseFuncArg())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	// ordered-set aggregates: string_agg(x, ',' ORDER BY y)
	if p.check(TOKEN_ORDER) && p.checkPeek(TOKEN_BY) {
		p.nextToken()
		p.nextToken()
		p.parseOrderByList()
	}

	p.expect(TOKEN_RPAREN)
	return args, distinct
}

// parseFuncArg parses a single function argument.
func (p *Parser) parseFuncArg() ast.FuncArg {
	if p.match(TOKEN_STAR) {
		return &ast.WildcardArg{}
	}

	if isIdentToken(p.token) {
		switch {
		case p.checkPeek(TOKEN_DOT) && p.checkPeek2(TOKEN_STAR):
			qualifier := p.token.Literal
			p.nextToken()
			p.nextToken()
			p.nextToken()
			return &ast.WildcardArg{Qualifier: []string{qualifier}}
		case p.checkPeek(TOKEN_ARROW):
			name := p.token.Literal
			p.nextToken()
			p.nextToken()
			return &ast.NamedArg{Name: name, Value: p.parseExpression()}
		}
	}

	return &ast.ExprArg{Expr: p.parseExpression()}
}

// parseCaseExpr parses CASE [operand] WHEN ... THEN ... [ELSE ...] END.
func (p *Parser) parseCaseExpr() ast.Expr {
	p.expect(TOKEN_CASE)
	c := &ast.CaseExpr{}

	if !p.check(TOKEN_WHEN) {
		c.Operand = p.parseExpression()
	}

	for !p.failed() && p.match(TOKEN_WHEN) {
		w := ast.WhenClause{Condition: p.parseExpression()}
		p.expect(TOKEN_THEN)
		w.Result = p.parseExpression()
		c.Whens = append(c.Whens, w)
	}

	if len(c.Whens) == 0 && !p.failed() {
		p.addError(p.unexpected("WHEN"))
		return nil
	}

	if p.match(TOKEN_ELSE) {
		c.Else = p.parseExpression()
	}

	p.expect(TOKEN_END)
	return c
}

// parseCastExpr parses CAST ( expr AS type ).
func (p *Parser) parseCastExpr() ast.Expr {
	p.expect(TOKEN_CAST)
	if !p.expect(TOKEN_LPAREN) {
		return nil
	}
	e := p.parseExpression()
	p.expect(TOKEN_AS)
	typ := p.parseTypeName()
	p.expect(TOKEN_RPAREN)
	return &ast.CastExpr{Expr: e, Type: typ}
}

// parseInterval parses INTERVAL value [unit].
func (p *Parser) parseInterval() ast.Expr {
	p.expect(TOKEN_INTERVAL)
	iv := &ast.Interval{Value: p.parsePrimary()}
	if p.check(TOKEN_IDENT) && isIntervalUnit(p.token.Literal) {
		iv.Unit = strings.ToUpper(p.token.Literal)
		p.nextToken()
	}
	return iv
}

func isIntervalUnit(s string) bool {
	switch strings.TrimSuffix(strings.ToUpper(s), "S") {
	case "YEAR", "QUARTER", "MONTH", "WEEK", "DAY", "HOUR", "MINUTE", "SECOND",
		"MILLISECOND", "MICROSECOND":
		return true
	}
	return false
}
