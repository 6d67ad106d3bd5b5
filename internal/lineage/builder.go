package lineage

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/querygraph/pkg/ast"
)

// Build constructs the dependency graph of q.
//
// CTEs are processed in declaration order: each is registered before its
// body is walked, its FROM tables get an edge into it, and its projections
// are recorded with the CTE as context. The final body then writes into
// the result entity the same way.
//
// Build only fails in strict mode; otherwise every irregularity becomes a
// Diagnostic on the returned graph.
func Build(q *ast.Query, opts ...Option) (*Graph, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	b := &builder{g: newGraph(o.resultKey), opts: o}
	root := newScope(nil, "")

	if q == nil {
		result := b.registerResult()
		b.unsupported(result, "empty query")
	} else {
		qs := b.declareCTEs(q.With, root, "")
		result := b.registerResult()
		b.buildBody(q.Body, result, qs, "")
	}

	b.g.checkEdges()

	if b.err != nil {
		return nil, b.err
	}

	b.opts.logger.Debug("built lineage graph",
		"tables", len(b.g.tableOrder),
		"columns", len(b.g.columns),
		"edges", len(b.g.edges),
		"diagnostics", len(b.g.diagnostics))

	return b.g, nil
}

// builder carries the state of one Build call.
type builder struct {
	g    *Graph
	opts options
	err  error // first strict-mode failure
}

func (b *builder) registerResult() string {
	return b.g.register(TableEntity{
		Key:           b.opts.resultKey,
		CanonicalName: b.opts.resultKey,
		Kind:          KindResult,
	}, b.opts.keys, "")
}

// buildQuery builds a nested query (CTE body or derived table) whose
// output feeds consumer.
func (b *builder) buildQuery(q *ast.Query, consumer string, parent *scope, path string) {
	qs := b.declareCTEs(q.With, parent, path)
	b.buildBody(q.Body, consumer, qs, path)
}

// declareCTEs registers and builds the CTEs of a WITH clause and returns
// the scope in which they are visible.
func (b *builder) declareCTEs(w *ast.With, parent *scope, path string) *scope {
	qs := parent.child(path)
	if w == nil {
		return qs
	}

	for _, cte := range w.CTEs {
		key := b.g.register(TableEntity{
			Key:           cte.Name,
			CanonicalName: cte.Name,
			Kind:          KindCTE,
			Scope:         path,
		}, b.opts.keys, path)
		qs.declareCTE(cte.Name, key)

		if cte.Query == nil {
			continue
		}
		b.buildQuery(cte.Query, key, qs, childPath(path, key))
	}
	return qs
}

// buildBody builds a query body. Only plain SELECT blocks and
// parenthesized queries are traced.
func (b *builder) buildBody(body ast.SetExpr, consumer string, qs *scope, path string) {
	switch n := body.(type) {
	case *ast.Select:
		block := qs.child(path)
		b.discover(n.From, consumer, block, path)
		b.project(consumer, n.Projection, block)
	case *ast.NestedQuery:
		if n.Query == nil {
			b.unsupported(consumer, "empty query")
			return
		}
		b.buildQuery(n.Query, consumer, qs, path)
	case *ast.SetOperation:
		b.unsupported(consumer, "set operation "+string(n.Op))
	case *ast.Values:
		b.unsupported(consumer, "VALUES list")
	case nil:
		b.unsupported(consumer, "empty query")
	default:
		b.unsupported(consumer, fmt.Sprintf("%T", body))
	}
}

func (b *builder) unsupported(context, shape string) {
	b.diagnose(Diagnostic{
		Kind:    UnsupportedQueryShape,
		Context: context,
		Subject: shape,
		Message: fmt.Sprintf("%s is not traced; no lineage recorded for %s", shape, context),
	})
	b.fail(fmt.Errorf("%w: %s in %s", ErrUnsupportedQueryShape, shape, context))
}

func (b *builder) diagnose(d Diagnostic) {
	b.opts.logger.Debug("lineage diagnostic",
		"kind", d.Kind.String(),
		"context", d.Context,
		"subject", d.Subject)
	b.g.addDiagnostic(d)
}

// fail records err when running strict.
func (b *builder) fail(err error) {
	if b.opts.strict && b.err == nil {
		b.err = err
	}
}

// childPath returns the scope path of a query nested under key.
func childPath(path, key string) string {
	if path == "" || strings.HasPrefix(key, path+"/") {
		return key
	}
	return path + "/" + key
}
