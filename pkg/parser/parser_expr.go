package parser

import (
	"strings"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// Expression precedence parsing using a Pratt parser.
//
// Precedence levels:
//
//	precedenceOr         = 1
//	precedenceAnd        = 2
//	precedenceNot        = 3
//	precedenceComparison = 4  (=, <>, <, >, <=, >=, IS, IN, BETWEEN, LIKE, ILIKE)
//	precedenceAddition   = 5  (+, -, ||)
//	precedenceMultiply   = 6  (*, /, %)
//	precedenceUnary      = 7  (-, +)
//	precedencePostfix    = 8  (::)
const (
	precedenceNone = iota
	precedenceOr
	precedenceAnd
	precedenceNot
	precedenceComparison
	precedenceAddition
	precedenceMultiply
	precedenceUnary
	precedencePostfix
)

// parseExpression parses an expression using precedence climbing.
func (p *Parser) parseExpression() ast.Expr {
	return p.parseExpressionWithPrecedence(precedenceNone + 1)
}

// parseExpressionWithPrecedence implements Pratt parsing.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) ast.Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for !p.failed() {
		prec := p.getInfixPrecedence()
		if prec == precedenceNone || prec < minPrecedence {
			break
		}

		left = p.parseInfixExpr(left, prec)
		if left == nil {
			break
		}
	}

	return left
}

// parsePrefixExpr parses prefix operators and primary expressions.
func (p *Parser) parsePrefixExpr() ast.Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		if p.checkPeek(TOKEN_EXISTS) {
			p.nextToken()
			e := p.parsePrimary()
			if ex, ok := e.(*ast.Exists); ok {
				ex.Not = true
			}
			return e
		}
		p.nextToken()
		return &ast.UnaryExpr{Op: "NOT", Expr: p.parseExpressionWithPrecedence(precedenceNot)}

	case TOKEN_MINUS:
		p.nextToken()
		return &ast.UnaryExpr{Op: "-", Expr: p.parseExpressionWithPrecedence(precedenceUnary)}

	case TOKEN_PLUS:
		p.nextToken()
		return &ast.UnaryExpr{Op: "+", Expr: p.parseExpressionWithPrecedence(precedenceUnary)}

	default:
		return p.parsePrimary()
	}
}

// getInfixPrecedence returns the precedence of the current token as an
// infix operator, or precedenceNone.
func (p *Parser) getInfixPrecedence() int {
	switch p.token.Type {
	case TOKEN_OR:
		return precedenceOr
	case TOKEN_AND:
		return precedenceAnd
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_GT, TOKEN_LE, TOKEN_GE,
		TOKEN_IS, TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
		return precedenceComparison
	case TOKEN_NOT:
		switch p.peek.Type {
		case TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
			return precedenceComparison
		}
		return precedenceNone
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_DPIPE:
		return precedenceAddition
	case TOKEN_STAR, TOKEN_SLASH, TOKEN_PERCENT:
		return precedenceMultiply
	case TOKEN_DCOLON:
		return precedencePostfix
	}
	return precedenceNone
}

// parseInfixExpr parses the operator at the current token applied to left.
func (p *Parser) parseInfixExpr(left ast.Expr, prec int) ast.Expr {
	switch p.token.Type {
	case TOKEN_IS:
		return p.parseIsExpr(left)

	case TOKEN_NOT:
		p.nextToken()
		return p.parseNegatableInfix(left, true)

	case TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_ILIKE:
		return p.parseNegatableInfix(left, false)

	case TOKEN_DCOLON:
		p.nextToken()
		return &ast.CastExpr{Expr: left, Type: p.parseTypeName(), DoubleColon: true}

	default:
		op := strings.ToUpper(p.token.Literal)
		p.nextToken()
		right := p.parseExpressionWithPrecedence(prec + 1)
		if right == nil {
			if !p.failed() {
				p.addError(p.unexpected("expression"))
			}
			return nil
		}
		return &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
}

// parseIsExpr parses IS [NOT] NULL | TRUE | FALSE | DISTINCT FROM expr.
func (p *Parser) parseIsExpr(left ast.Expr) ast.Expr {
	p.expect(TOKEN_IS)
	not := p.match(TOKEN_NOT)

	switch p.token.Type {
	case TOKEN_NULL:
		p.nextToken()
		return &ast.IsNull{Expr: left, Not: not}
	case TOKEN_TRUE, TOKEN_FALSE:
		lit := &ast.Literal{Type: ast.LiteralBool, Value: strings.ToUpper(p.token.Literal)}
		p.nextToken()
		return &ast.BinaryExpr{Left: left, Op: isOp(not, ""), Right: lit}
	case TOKEN_DISTINCT:
		p.nextToken()
		p.expect(TOKEN_FROM)
		right := p.parseExpressionWithPrecedence(precedenceAddition)
		return &ast.BinaryExpr{Left: left, Op: isOp(not, " DISTINCT FROM"), Right: right}
	}

	p.addError(p.unexpected("NULL, TRUE, FALSE or DISTINCT FROM"))
	return nil
}

func isOp(not bool, suffix string) string {
	if not {
		return "IS NOT" + suffix
	}
	return "IS" + suffix
}

// parseNegatableInfix parses IN, BETWEEN, LIKE and ILIKE; a preceding NOT
// has already been consumed when not is set.
func (p *Parser) parseNegatableInfix(left ast.Expr, not bool) ast.Expr {
	switch p.token.Type {
	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, not)

	case TOKEN_BETWEEN:
		p.nextToken()
		low := p.parseExpressionWithPrecedence(precedenceAddition)
		p.expect(TOKEN_AND)
		high := p.parseExpressionWithPrecedence(precedenceAddition)
		return &ast.Between{Expr: left, Low: low, High: high, Not: not}

	case TOKEN_LIKE, TOKEN_ILIKE:
		ci := p.check(TOKEN_ILIKE)
		p.nextToken()
		pattern := p.parseExpressionWithPrecedence(precedenceAddition)
		return &ast.Like{Expr: left, Pattern: pattern, Not: not, CaseInsensitive: ci}
	}

	p.addError(p.unexpected("IN, BETWEEN, LIKE or ILIKE"))
	return nil
}

// parseInExpr parses the list or subquery after IN.
func (p *Parser) parseInExpr(left ast.Expr, not bool) ast.Expr {
	if !p.expect(TOKEN_LPAREN) {
		return nil
	}

	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		q := p.parseQuery()
		p.expect(TOKEN_RPAREN)
		return &ast.InSubquery{Expr: left, Query: q, Not: not}
	}

	list := p.parseExpressionList()
	p.expect(TOKEN_RPAREN)
	return &ast.InList{Expr: left, List: list, Not: not}
}

var typeNameSuffixes = map[string]bool{
	"PRECISION": true,
	"VARYING":   true,
}

// parseTypeName parses a type name such as INTEGER, DECIMAL(10, 2) or
// DOUBLE PRECISION. The result is upper-cased.
func (p *Parser) parseTypeName() string {
	if !isIdentToken(p.token) {
		p.addError(p.unexpected("type name"))
		return ""
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(p.token.Literal))
	p.nextToken()

	// Multi-word types: DOUBLE PRECISION, CHARACTER VARYING, ...
	for p.check(TOKEN_IDENT) && typeNameSuffixes[strings.ToUpper(p.token.Literal)] {
		b.WriteByte(' ')
		b.WriteString(strings.ToUpper(p.token.Literal))
		p.nextToken()
	}

	if p.match(TOKEN_LPAREN) {
		b.WriteByte('(')
		for i := 0; !p.failed(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			if !p.check(TOKEN_NUMBER) {
				p.addError(p.unexpected("NUMBER"))
				break
			}
			b.WriteString(p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
		b.WriteByte(')')
	}

	return b.String()
}
