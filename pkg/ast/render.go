package ast

import (
	"strings"
)

// Render returns the SQL text of an expression. Identifiers keep the case
// they were written in; keywords are upper-case.
func Render(e Expr) string {
	var p printer
	p.expr(e)
	return p.String()
}

// RenderQuery returns the SQL text of a query on a single line.
func RenderQuery(q *Query) string {
	var p printer
	p.query(q)
	return p.String()
}

// RenderSelectItem returns the SQL text of a projection entry.
func RenderSelectItem(item SelectItem) string {
	var p printer
	p.selectItem(item)
	return p.String()
}

type printer struct {
	strings.Builder
}

func (p *printer) expr(e Expr) {
	if e == nil {
		return
	}

	switch n := e.(type) {
	case *Identifier:
		p.ident(n.Name)
	case *CompoundIdentifier:
		p.parts(n.Parts)
	case *BinaryExpr:
		p.expr(n.Left)
		p.WriteString(" " + n.Op + " ")
		p.expr(n.Right)
	case *FuncCall:
		p.funcCall(n)
	case *Nested:
		p.WriteByte('(')
		p.expr(n.Expr)
		p.WriteByte(')')
	case *Literal:
		p.literal(n)
	case *UnaryExpr:
		operand := Render(n.Expr)
		p.WriteString(n.Op)
		// "- -1" must not collapse into a "--" line comment
		if isWordOp(n.Op) || strings.HasPrefix(operand, "-") || strings.HasPrefix(operand, "+") {
			p.WriteByte(' ')
		}
		p.WriteString(operand)
	case *CaseExpr:
		p.caseExpr(n)
	case *CastExpr:
		if n.DoubleColon {
			p.expr(n.Expr)
			p.WriteString("::" + n.Type)
			return
		}
		p.WriteString("CAST(")
		p.expr(n.Expr)
		p.WriteString(" AS " + n.Type + ")")
	case *InList:
		p.expr(n.Expr)
		p.not(n.Not)
		p.WriteString(" IN (")
		p.exprList(n.List)
		p.WriteByte(')')
	case *InSubquery:
		p.expr(n.Expr)
		p.not(n.Not)
		p.WriteString(" IN (")
		p.query(n.Query)
		p.WriteByte(')')
	case *Between:
		p.expr(n.Expr)
		p.not(n.Not)
		p.WriteString(" BETWEEN ")
		p.expr(n.Low)
		p.WriteString(" AND ")
		p.expr(n.High)
	case *IsNull:
		p.expr(n.Expr)
		if n.Not {
			p.WriteString(" IS NOT NULL")
		} else {
			p.WriteString(" IS NULL")
		}
	case *Like:
		p.expr(n.Expr)
		p.not(n.Not)
		if n.CaseInsensitive {
			p.WriteString(" ILIKE ")
		} else {
			p.WriteString(" LIKE ")
		}
		p.expr(n.Pattern)
	case *Subquery:
		p.WriteByte('(')
		p.query(n.Query)
		p.WriteByte(')')
	case *Exists:
		if n.Not {
			p.WriteString("NOT ")
		}
		p.WriteString("EXISTS (")
		p.query(n.Query)
		p.WriteByte(')')
	case *TypedString:
		p.WriteString(n.Type + " ")
		p.quoted(n.Value)
	case *Interval:
		p.WriteString("INTERVAL ")
		p.expr(n.Value)
		if n.Unit != "" {
			p.WriteString(" " + n.Unit)
		}
	}
}

func (p *printer) not(not bool) {
	if not {
		p.WriteString(" NOT")
	}
}

func (p *printer) exprList(list []Expr) {
	for i, e := range list {
		if i > 0 {
			p.WriteString(", ")
		}
		p.expr(e)
	}
}

func (p *printer) literal(l *Literal) {
	switch l.Type {
	case LiteralString:
		p.quoted(l.Value)
	case LiteralBool, LiteralNull:
		p.WriteString(strings.ToUpper(l.Value))
	default:
		p.WriteString(l.Value)
	}
}

func (p *printer) quoted(s string) {
	p.WriteByte('\'')
	p.WriteString(strings.ReplaceAll(s, "'", "''"))
	p.WriteByte('\'')
}

func (p *printer) funcCall(f *FuncCall) {
	p.parts(f.Name)
	p.WriteByte('(')
	if f.Distinct {
		p.WriteString("DISTINCT ")
	}
	for i, arg := range f.Args {
		if i > 0 {
			p.WriteString(", ")
		}
		switch a := arg.(type) {
		case *ExprArg:
			p.expr(a.Expr)
		case *WildcardArg:
			if len(a.Qualifier) > 0 {
				p.parts(a.Qualifier)
				p.WriteByte('.')
			}
			p.WriteByte('*')
		case *NamedArg:
			p.ident(a.Name)
			p.WriteString(" => ")
			p.expr(a.Value)
		}
	}
	p.WriteByte(')')
	if f.Filter != nil {
		p.WriteString(" FILTER (WHERE ")
		p.expr(f.Filter)
		p.WriteByte(')')
	}
	if f.Over != nil {
		p.WriteString(" OVER ")
		p.window(f.Over)
	}
}

func (p *printer) window(w *WindowSpec) {
	if w.Name != "" && len(w.PartitionBy) == 0 && len(w.OrderBy) == 0 && w.Frame == nil {
		p.ident(w.Name)
		return
	}
	p.WriteByte('(')
	var parts []string
	if w.Name != "" {
		parts = append(parts, quoteIdent(w.Name))
	}
	if len(w.PartitionBy) > 0 {
		var sub printer
		sub.WriteString("PARTITION BY ")
		sub.exprList(w.PartitionBy)
		parts = append(parts, sub.String())
	}
	if len(w.OrderBy) > 0 {
		var sub printer
		sub.WriteString("ORDER BY ")
		sub.orderBy(w.OrderBy)
		parts = append(parts, sub.String())
	}
	if w.Frame != nil {
		var sub printer
		sub.frame(w.Frame)
		parts = append(parts, sub.String())
	}
	p.WriteString(strings.Join(parts, " "))
	p.WriteByte(')')
}

func (p *printer) frame(f *WindowFrame) {
	p.WriteString(f.Units + " ")
	if f.End != nil {
		p.WriteString("BETWEEN ")
	}
	p.frameBound(f.Start)
	if f.End != nil {
		p.WriteString(" AND ")
		p.frameBound(*f.End)
	}
}

func (p *printer) frameBound(b FrameBound) {
	if b.Offset != nil {
		p.expr(b.Offset)
		p.WriteByte(' ')
	}
	p.WriteString(b.Bound)
}

func (p *printer) caseExpr(c *CaseExpr) {
	p.WriteString("CASE")
	if c.Operand != nil {
		p.WriteByte(' ')
		p.expr(c.Operand)
	}
	for _, w := range c.Whens {
		p.WriteString(" WHEN ")
		p.expr(w.Condition)
		p.WriteString(" THEN ")
		p.expr(w.Result)
	}
	if c.Else != nil {
		p.WriteString(" ELSE ")
		p.expr(c.Else)
	}
	p.WriteString(" END")
}

func (p *printer) orderBy(items []OrderByItem) {
	for i, item := range items {
		if i > 0 {
			p.WriteString(", ")
		}
		p.expr(item.Expr)
		if item.Desc {
			p.WriteString(" DESC")
		}
		if item.NullsFirst != nil {
			if *item.NullsFirst {
				p.WriteString(" NULLS FIRST")
			} else {
				p.WriteString(" NULLS LAST")
			}
		}
	}
}

// ---------- Queries ----------

func (p *printer) query(q *Query) {
	if q == nil {
		return
	}
	if q.With != nil {
		p.WriteString("WITH ")
		if q.With.Recursive {
			p.WriteString("RECURSIVE ")
		}
		for i, cte := range q.With.CTEs {
			if i > 0 {
				p.WriteString(", ")
			}
			p.ident(cte.Name)
			if len(cte.Columns) > 0 {
				p.WriteByte('(')
				for j, c := range cte.Columns {
					if j > 0 {
						p.WriteString(", ")
					}
					p.ident(c)
				}
				p.WriteByte(')')
			}
			p.WriteString(" AS (")
			p.query(cte.Query)
			p.WriteByte(')')
		}
		p.WriteByte(' ')
	}
	p.setExpr(q.Body)
	if len(q.OrderBy) > 0 {
		p.WriteString(" ORDER BY ")
		p.orderBy(q.OrderBy)
	}
	if q.Limit != nil {
		p.WriteString(" LIMIT ")
		p.expr(q.Limit)
	}
	if q.Offset != nil {
		p.WriteString(" OFFSET ")
		p.expr(q.Offset)
	}
}

func (p *printer) setExpr(body SetExpr) {
	switch b := body.(type) {
	case *Select:
		p.selectBlock(b)
	case *SetOperation:
		p.setExpr(b.Left)
		p.WriteString(" " + string(b.Op))
		if b.All {
			p.WriteString(" ALL")
		}
		p.WriteByte(' ')
		p.setExpr(b.Right)
	case *NestedQuery:
		p.WriteByte('(')
		p.query(b.Query)
		p.WriteByte(')')
	case *Values:
		p.WriteString("VALUES ")
		for i, row := range b.Rows {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteByte('(')
			p.exprList(row)
			p.WriteByte(')')
		}
	}
}

func (p *printer) selectBlock(s *Select) {
	p.WriteString("SELECT ")
	if s.Distinct {
		p.WriteString("DISTINCT ")
	}
	for i, item := range s.Projection {
		if i > 0 {
			p.WriteString(", ")
		}
		p.selectItem(item)
	}
	if len(s.From) > 0 {
		p.WriteString(" FROM ")
		for i, twj := range s.From {
			if i > 0 {
				p.WriteString(", ")
			}
			p.tableWithJoins(twj)
		}
	}
	if s.Where != nil {
		p.WriteString(" WHERE ")
		p.expr(s.Where)
	}
	if len(s.GroupBy) > 0 {
		p.WriteString(" GROUP BY ")
		p.exprList(s.GroupBy)
	}
	if s.Having != nil {
		p.WriteString(" HAVING ")
		p.expr(s.Having)
	}
	if len(s.Windows) > 0 {
		p.WriteString(" WINDOW ")
		for i, w := range s.Windows {
			if i > 0 {
				p.WriteString(", ")
			}
			p.ident(w.Name)
			p.WriteString(" AS ")
			p.window(w.Spec)
		}
	}
	if s.Qualify != nil {
		p.WriteString(" QUALIFY ")
		p.expr(s.Qualify)
	}
}

func (p *printer) selectItem(item SelectItem) {
	switch it := item.(type) {
	case *UnnamedExpr:
		p.expr(it.Expr)
	case *AliasedExpr:
		p.expr(it.Expr)
		p.WriteString(" AS ")
		p.ident(it.Alias)
	case *Wildcard:
		p.WriteByte('*')
	case *QualifiedWildcard:
		p.parts(it.Qualifier)
		p.WriteString(".*")
	}
}

func (p *printer) tableWithJoins(twj *TableWithJoins) {
	p.tableFactor(twj.Relation)
	for _, j := range twj.Joins {
		p.WriteByte(' ')
		if j.Natural {
			p.WriteString("NATURAL ")
		}
		p.WriteString(string(j.Type) + " JOIN ")
		p.tableFactor(j.Relation)
		if j.On != nil {
			p.WriteString(" ON ")
			p.expr(j.On)
		}
		if len(j.Using) > 0 {
			p.WriteString(" USING (")
			for i, c := range j.Using {
				if i > 0 {
					p.WriteString(", ")
				}
				p.ident(c)
			}
			p.WriteByte(')')
		}
	}
}

func (p *printer) tableFactor(tf TableFactor) {
	var alias string
	switch t := tf.(type) {
	case *TableName:
		p.parts(t.Parts)
		alias = t.Alias
	case *DerivedTable:
		if t.Lateral {
			p.WriteString("LATERAL ")
		}
		p.WriteByte('(')
		p.query(t.Query)
		p.WriteByte(')')
		alias = t.Alias
	case *NestedJoin:
		p.WriteByte('(')
		p.tableWithJoins(t.Table)
		p.WriteByte(')')
		alias = t.Alias
	case *TableFunction:
		p.funcCall(&FuncCall{Name: t.Name, Args: t.Args})
		alias = t.Alias
	}
	if alias != "" {
		p.WriteString(" AS ")
		p.ident(alias)
	}
}

// ---------- Identifiers ----------

func (p *printer) ident(name string) {
	p.WriteString(quoteIdent(name))
}

func (p *printer) parts(parts []string) {
	for i, part := range parts {
		if i > 0 {
			p.WriteByte('.')
		}
		p.ident(part)
	}
}

// quoteIdent double-quotes a name that would not lex back as a bare
// identifier.
func quoteIdent(name string) string {
	if isBareIdent(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isBareIdent(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isWordOp(op string) bool {
	return op != "" && op[0] >= 'A' && op[0] <= 'Z'
}
