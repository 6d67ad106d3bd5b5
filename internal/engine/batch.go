package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/querygraph/internal/loader"
)

// BatchResult holds the reports of a directory analysis.
type BatchResult struct {
	Dir      string
	Reports  []*Report // sorted by name
	Duration time.Duration
}

// Failed returns the number of reports that did not complete.
func (b *BatchResult) Failed() int {
	n := 0
	for _, r := range b.Reports {
		if !r.OK() {
			n++
		}
	}
	return n
}

// Report returns the report of a query by name.
func (b *BatchResult) Report(name string) (*Report, bool) {
	for _, r := range b.Reports {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// AnalyzeDir analyzes every .sql file under dir concurrently. Each query
// gets its own graph. Loading errors (unreadable files, bad frontmatter)
// fail the whole batch; query errors are kept on the reports.
func (e *Engine) AnalyzeDir(ctx context.Context, dir string) (*BatchResult, error) {
	if dir == "" {
		dir = e.cfg.QueriesDir
	}
	if err := checkContext(ctx, "analyze "+dir); err != nil {
		return nil, err
	}

	start := time.Now()
	e.logger.Debug("scanning queries", "dir", dir)

	files, err := loader.NewScanner(dir).ScanDir(dir)
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = e.analyze(f)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", dir, err)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Name < reports[j].Name
	})

	res := &BatchResult{Dir: dir, Reports: reports, Duration: time.Since(start)}
	e.logger.Info("analyzed directory",
		"dir", dir,
		"queries", len(reports),
		"failed", res.Failed(),
		"duration", res.Duration)
	return res, nil
}
