package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/engine"
)

// NewBatchCommand creates the batch command.
func NewBatchCommand() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "batch [dir]",
		Short: "Analyze every query file in a directory",
		Long: `Analyze all .sql files under a directory (default: the configured
queries directory) in parallel. Each file gets its own lineage graph.

The summary lists the status of every query, which queries read tables
produced by other queries in the directory, and which base tables come
from outside it.

With --save a snapshot is stored for every query whose content changed
since its last snapshot.`,
		Example: `  # Analyze the configured queries directory
  querygraph batch

  # Analyze another directory with four workers
  querygraph batch ./sql --concurrency 4

  # Store snapshots of changed queries
  querygraph batch --save`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runBatch(cmd, dir, save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Store snapshots of changed queries")

	return cmd
}

func runBatch(cmd *cobra.Command, dir string, save bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, save)
	if err != nil {
		return err
	}
	defer cleanup()

	if dir == "" {
		if err := cmdCtx.Cfg.ValidateQueriesDir(); err != nil {
			return err
		}
	}

	out, err := analyzeBatch(cmd.Context(), cmdCtx.Engine, dir, save)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(out); ok {
		if err != nil {
			return err
		}
	} else {
		renderBatch(r, out)
	}

	if out.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d queries failed", out.Summary.Failed, out.Summary.Total)
	}
	return nil
}

// analyzeBatch analyzes dir and optionally stores changed snapshots.
func analyzeBatch(ctx context.Context, eng *engine.Engine, dir string, save bool) (output.BatchOutput, error) {
	res, err := eng.AnalyzeDir(ctx, dir)
	if err != nil {
		return output.BatchOutput{}, err
	}

	var saved []string
	if save {
		saved, err = eng.SaveChanged(ctx, res.Reports)
		if err != nil {
			return output.BatchOutput{}, err
		}
	}
	return output.FromBatch(res, saved), nil
}

// renderBatch writes a batch summary in text or markdown form.
func renderBatch(r *output.Renderer, out output.BatchOutput) {
	styles := r.Styles()
	markdown := r.EffectiveMode() == output.ModeMarkdown

	r.Header(1, "Queries in "+out.Dir)

	rows := make([][]string, 0, len(out.Queries))
	for _, q := range out.Queries {
		rows = append(rows, []string{
			q.Name,
			output.Title(q.Status),
			strconv.Itoa(q.Tables),
			strconv.Itoa(q.Columns),
			strconv.Itoa(q.Diagnostics),
		})
	}
	r.Table([]string{"Query", "Status", "Tables", "Columns", "Diagnostics"}, rows)
	r.Println("")

	var failed []output.BatchEntry
	for _, q := range out.Queries {
		if q.Error != "" {
			failed = append(failed, q)
		}
	}
	if len(failed) > 0 {
		r.Header(2, "Errors")
		for _, q := range failed {
			if markdown {
				r.Printf("- %s: %s\n", q.Name, q.Error)
			} else {
				r.Printf("  %s %s\n", styles.QueryName.Render(q.Name+":"), styles.Error.Render(q.Error))
			}
		}
		r.Println("")
	}

	if len(out.Dependencies) > 0 {
		r.Header(2, "Query Dependencies")
		for _, e := range out.Dependencies {
			if markdown {
				r.Printf("- %s → %s\n", e.Producer, e.Consumer)
			} else {
				r.Printf("  %s → %s\n", styles.QueryName.Render(e.Producer), styles.QueryName.Render(e.Consumer))
			}
		}
		r.Println("")
	}

	if len(out.ExternalSources) > 0 {
		r.Header(2, "External Sources")
		for _, s := range out.ExternalSources {
			if markdown {
				r.Printf("- %s\n", s)
			} else {
				r.Printf("  %s\n", styles.TableKey.Render(s))
			}
		}
		r.Println("")
	}

	if len(out.Saved) > 0 {
		r.Success(fmt.Sprintf("Saved %d snapshot(s)", len(out.Saved)))
	}

	summary := fmt.Sprintf("Total: %d queries, %d failed, %s", out.Summary.Total, out.Summary.Failed, out.Duration.Round(time.Millisecond))
	if markdown {
		r.Println(output.FormatHeader(2, "Summary"))
		r.Println(output.FormatKeyValue("Total Queries", strconv.Itoa(out.Summary.Total)))
		r.Println(output.FormatKeyValue("Failed", strconv.Itoa(out.Summary.Failed)))
		return
	}
	r.Println(styles.Muted.Render(summary))
}
