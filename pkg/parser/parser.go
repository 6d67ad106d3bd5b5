// Package parser turns SQL query text into the ast.Query tree.
//
// # Usage
//
//	q, err := parser.Parse("WITH s AS (SELECT c.id FROM customers c) SELECT s.id FROM s")
//	if err != nil {
//	    // handle error
//	}
//
// # Grammar Overview
//
// The parser implements a recursive descent parser for the query subset
// of SQL:
//
//	statement  → query [;] EOF
//	query      → [WITH [RECURSIVE] cte_list] set_expr
//	             [ORDER BY order_list] [LIMIT expr] [OFFSET expr]
//	set_expr   → set_term {(UNION|EXCEPT) [ALL|DISTINCT] set_term}
//	set_term   → set_prim {INTERSECT [ALL|DISTINCT] set_prim}
//	set_prim   → select | VALUES row_list | ( query )
//	select     → SELECT [DISTINCT|ALL] select_list [FROM from_list]
//	             [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	             [WINDOW window_list] [QUALIFY expr]
//
// See each file for detailed grammar rules for that section.
package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// Parser parses SQL into an AST.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	peek2  Token // second lookahead token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{
		lexer: NewLexer(sql),
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single query and returns its AST.
func Parse(sql string) (*ast.Query, error) {
	if err := checkUTF8(sql); err != nil {
		return nil, err
	}
	p := NewParser(sql)
	q := p.parseStatement()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	return q, nil
}

// checkUTF8 rejects input that is not valid UTF-8, pointing at the first
// bad byte.
func checkUTF8(sql string) error {
	if utf8.ValidString(sql) {
		return nil
	}
	pos := Position{Line: 1, Column: 1}
	for pos.Offset < len(sql) {
		r, size := utf8.DecodeRuneInString(sql[pos.Offset:])
		if r == utf8.RuneError && size == 1 {
			return &ParseError{Pos: pos, Message: fmt.Sprintf(ErrInvalidUTF8, sql[pos.Offset])}
		}
		if r == '\n' {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column += size
		}
		pos.Offset += size
	}
	return nil
}

// Errors returns lexical errors followed by syntax errors.
func (p *Parser) Errors() []error {
	errs := make([]error, 0, len(p.errors)+len(p.lexer.Errors()))
	errs = append(errs, p.lexer.Errors()...)
	return append(errs, p.errors...)
}

// parseStatement parses a full statement and requires the input to end.
func (p *Parser) parseStatement() *ast.Query {
	if p.check(TOKEN_EOF) {
		p.addError(ErrEmptyQuery)
		return nil
	}
	q := p.parseQuery()
	p.match(TOKEN_SEMICOLON)
	if !p.failed() && !p.check(TOKEN_EOF) {
		p.addError(fmt.Sprintf(ErrUnexpectedInput, p.describe(p.token)))
	}
	return q
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

// checkPeek2 returns true if the peek2 token is of the given type.
func (p *Parser) checkPeek2(t TokenType) bool {
	return p.peek2.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), t))
	return false
}

// addError adds a parse error.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}

// failed reports whether any error has been recorded. Loops bail out on
// the first error so a bad token never spins the parser.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_IDENT, TOKEN_NUMBER:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	case TOKEN_STRING:
		return fmt.Sprintf("string '%s'", tok.Literal)
	}
	return tok.Type.String()
}

// ---------- Keyword Helpers ----------

// isNonReserved returns true for keywords that may still name a column,
// table or alias.
func isNonReserved(t TokenType) bool {
	switch t {
	case TOKEN_FIRST, TOKEN_LAST, TOKEN_FILTER, TOKEN_GROUPS, TOKEN_CURRENT,
		TOKEN_ROW, TOKEN_ROWS, TOKEN_RANGE, TOKEN_NULLS, TOKEN_PRECEDING,
		TOKEN_FOLLOWING, TOKEN_UNBOUNDED, TOKEN_RECURSIVE, TOKEN_PARTITION,
		TOKEN_OFFSET:
		return true
	}
	return false
}

// isIdentToken returns true if tok can be read as an identifier.
func isIdentToken(tok Token) bool {
	return tok.Type == TOKEN_IDENT || isNonReserved(tok.Type)
}

// parseIdent consumes an identifier and returns its text.
func (p *Parser) parseIdent() string {
	if !isIdentToken(p.token) {
		p.addError(fmt.Sprintf(ErrExpectedIdentifier, p.describe(p.token)))
		return ""
	}
	name := p.token.Literal
	p.nextToken()
	return name
}

// parseIdentList parses ident {, ident}.
func (p *Parser) parseIdentList() []string {
	var names []string
	for !p.failed() {
		names = append(names, p.parseIdent())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return names
}

// parseAlias parses [AS] alias. A bare alias must be a plain identifier so
// that clause keywords are never swallowed.
func (p *Parser) parseAlias() string {
	if p.match(TOKEN_AS) {
		return p.parseIdent()
	}
	if p.check(TOKEN_IDENT) {
		alias := p.token.Literal
		p.nextToken()
		return alias
	}
	return ""
}

// unexpected formats an unexpected-token message for the current token.
func (p *Parser) unexpected(want string) string {
	return fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), want)
}
