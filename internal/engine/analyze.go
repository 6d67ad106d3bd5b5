package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/querygraph/internal/lineage"
	"github.com/leapstack-labs/querygraph/internal/loader"
	"github.com/leapstack-labs/querygraph/pkg/parser"
)

// Report is the outcome of analyzing one query.
type Report struct {
	Name        string
	FilePath    string // empty for inline SQL
	Hash        string
	SQL         string
	Frontmatter *loader.Frontmatter

	Graph  *lineage.Graph      // nil when parsing or strict building failed
	Order  []string            // topological order; nil on a cycle
	Levels [][]string          // execution levels; nil on a cycle
	Cycle  *lineage.CycleError // set when the graph is cyclic

	ParseErr error // syntax or lexical error
	BuildErr error // strict-mode build failure

	Duration time.Duration
}

// Err returns the first problem that prevented a complete analysis.
func (r *Report) Err() error {
	switch {
	case r.ParseErr != nil:
		return r.ParseErr
	case r.BuildErr != nil:
		return r.BuildErr
	case r.Cycle != nil:
		return r.Cycle
	}
	return nil
}

// OK reports whether the query was parsed, built and ordered.
func (r *Report) OK() bool {
	return r.Err() == nil
}

// Status is a one-word summary used in listings.
func (r *Report) Status() string {
	switch {
	case r.ParseErr != nil:
		return "parse_error"
	case r.BuildErr != nil:
		return "unsupported"
	case r.Cycle != nil:
		return "cycle"
	case r.Graph != nil && len(r.Graph.Diagnostics()) > 0:
		return "warnings"
	}
	return "ok"
}

// AnalyzeSQL parses and analyzes inline SQL. Problems with the query are
// recorded on the report; the error is only set when ctx is done.
func (e *Engine) AnalyzeSQL(ctx context.Context, name, sql string) (*Report, error) {
	if err := checkContext(ctx, "analyze "+name); err != nil {
		return nil, err
	}

	fm, err := loader.ExtractFrontmatter(sql)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", name, err)
	}
	if fm.Config.Name == "" {
		fm.Config.Name = name
	}

	return e.analyze(&loader.QueryFile{
		Name:        fm.Config.Name,
		SQL:         fm.SQL,
		Frontmatter: fm.Config,
		Hash:        loader.ContentHash(sql),
	}), nil
}

// AnalyzeFile loads and analyzes a single file.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	if err := checkContext(ctx, "analyze "+path); err != nil {
		return nil, err
	}

	f, err := loader.NewScanner("").LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return e.analyze(f), nil
}

// analyze runs parse, build and ordering for one query file.
func (e *Engine) analyze(f *loader.QueryFile) *Report {
	start := time.Now()
	r := &Report{
		Name:        f.Name,
		FilePath:    f.FilePath,
		Hash:        f.Hash,
		SQL:         f.SQL,
		Frontmatter: f.Frontmatter,
	}
	defer func() { r.Duration = time.Since(start) }()

	keys, strict := e.cfg.KeyStrategy, e.cfg.Strict
	if fm := f.Frontmatter; fm != nil {
		if fm.Registry != "" {
			keys = lineage.KeyStrategy(fm.Registry)
		}
		if fm.Strict != nil {
			strict = *fm.Strict
		}
	}

	q, err := parser.Parse(f.SQL)
	if err != nil {
		e.logger.Debug("query parse error", "name", f.Name, "error", err.Error())
		r.ParseErr = err
		return r
	}

	g, err := lineage.Build(q, e.buildOptions(keys, strict)...)
	if err != nil {
		e.logger.Debug("query build error", "name", f.Name, "error", err.Error())
		r.BuildErr = err
		return r
	}
	r.Graph = g

	order, err := g.TopologicalOrder()
	var cycle *lineage.CycleError
	switch {
	case errors.As(err, &cycle):
		r.Cycle = cycle
		e.logger.Debug("query has cycle", "name", f.Name, "keys", cycle.Keys)
		return r
	case err != nil:
		// TopologicalOrder only fails with a cycle
		r.BuildErr = err
		return r
	}
	r.Order = order

	levels, err := g.ExecutionLevels()
	if err == nil {
		r.Levels = levels
	}

	e.logger.Debug("analyzed query",
		"name", f.Name,
		"tables", len(order),
		"diagnostics", len(g.Diagnostics()))
	return r
}
