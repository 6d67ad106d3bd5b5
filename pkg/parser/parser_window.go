package parser

import (
	"strings"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// Window specification parsing.
//
// Grammar:
//
//	over_clause  → name | ( window_spec )
//	window_spec  → [name] [PARTITION BY expr_list] [ORDER BY order_list] [frame]
//	frame        → (ROWS|RANGE|GROUPS) (BETWEEN bound AND bound | bound)
//	bound        → UNBOUNDED (PRECEDING|FOLLOWING) | CURRENT ROW
//	             | expr (PRECEDING|FOLLOWING)
//	window_list  → name AS ( window_spec ) {, name AS ( window_spec )}

// parseOverClause parses what follows OVER.
func (p *Parser) parseOverClause() *ast.WindowSpec {
	if isIdentToken(p.token) {
		return &ast.WindowSpec{Name: p.parseIdent()}
	}
	if !p.expect(TOKEN_LPAREN) {
		return nil
	}
	spec := p.parseWindowSpec()
	p.expect(TOKEN_RPAREN)
	return spec
}

// parseWindowSpec parses the inside of a window's parentheses.
func (p *Parser) parseWindowSpec() *ast.WindowSpec {
	spec := &ast.WindowSpec{}

	if p.check(TOKEN_IDENT) {
		spec.Name = p.parseIdent()
	}

	if p.check(TOKEN_PARTITION) && p.checkPeek(TOKEN_BY) {
		p.nextToken()
		p.nextToken()
		spec.PartitionBy = p.parseExpressionList()
	}

	if p.check(TOKEN_ORDER) {
		p.nextToken()
		p.expect(TOKEN_BY)
		spec.OrderBy = p.parseOrderByList()
	}

	switch p.token.Type {
	case TOKEN_ROWS, TOKEN_RANGE, TOKEN_GROUPS:
		spec.Frame = p.parseWindowFrame()
	}

	return spec
}

// parseWindowFrame parses the frame clause.
func (p *Parser) parseWindowFrame() *ast.WindowFrame {
	frame := &ast.WindowFrame{Units: strings.ToUpper(p.token.Literal)}
	p.nextToken()

	if p.match(TOKEN_BETWEEN) {
		frame.Start = p.parseFrameBound()
		p.expect(TOKEN_AND)
		end := p.parseFrameBound()
		frame.End = &end
		return frame
	}

	frame.Start = p.parseFrameBound()
	return frame
}

// parseFrameBound parses one frame bound.
func (p *Parser) parseFrameBound() ast.FrameBound {
	switch {
	case p.match(TOKEN_UNBOUNDED):
		if p.match(TOKEN_PRECEDING) {
			return ast.FrameBound{Bound: "UNBOUNDED PRECEDING"}
		}
		p.expect(TOKEN_FOLLOWING)
		return ast.FrameBound{Bound: "UNBOUNDED FOLLOWING"}

	case p.match(TOKEN_CURRENT):
		p.expect(TOKEN_ROW)
		return ast.FrameBound{Bound: "CURRENT ROW"}
	}

	offset := p.parseExpressionWithPrecedence(precedenceAddition)
	if p.match(TOKEN_PRECEDING) {
		return ast.FrameBound{Bound: "PRECEDING", Offset: offset}
	}
	p.expect(TOKEN_FOLLOWING)
	return ast.FrameBound{Bound: "FOLLOWING", Offset: offset}
}

// parseNamedWindows parses the WINDOW clause list (after WINDOW).
func (p *Parser) parseNamedWindows() []ast.NamedWindow {
	var windows []ast.NamedWindow
	for !p.failed() {
		w := ast.NamedWindow{Name: p.parseIdent()}
		p.expect(TOKEN_AS)
		if p.expect(TOKEN_LPAREN) {
			w.Spec = p.parseWindowSpec()
			p.expect(TOKEN_RPAREN)
		}
		windows = append(windows, w)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return windows
}
