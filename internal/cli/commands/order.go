package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
)

// NewOrderCommand creates the order command.
func NewOrderCommand() *cobra.Command {
	var inline string

	cmd := &cobra.Command{
		Use:   "order [file|-]",
		Short: "Show the evaluation order of a query's tables",
		Long: `Print the table entities of a query in dependency order: every producer
comes before its consumers and ties are broken alphabetically. Entities
are also grouped into levels whose members do not depend on each other.

When the graph has a cycle, the cyclic groups are printed instead and the
command fails.`,
		Example: `  # Order of a query file
  querygraph order queries/revenue.sql

  # Inline SQL as JSON
  querygraph order -e "WITH a AS (SELECT 1 AS x) SELECT x FROM a" -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd, args, inline)
		},
	}

	cmd.Flags().StringVarP(&inline, "sql", "e", "", "SQL text to analyze instead of a file")

	return cmd
}

func runOrder(cmd *cobra.Command, args []string, inline string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer

	report, err := analyzeInput(cmd, cmdCtx.Engine, args, inline, "")
	if err != nil {
		return err
	}
	if report.Graph == nil {
		return fmt.Errorf("cannot order %s: %w", report.Name, report.Err())
	}

	out := output.OrderOutput{
		Name:   report.Name,
		Order:  report.Order,
		Levels: report.Levels,
	}
	if report.Cycle != nil {
		out.Cycles = report.Cycle.Components
	}

	ok, err := r.Structured(out)
	if !ok {
		r.Header(1, "Order: "+report.Name)
		renderOrder(r, out.Order, out.Levels, out.Cycles)
	}
	if err != nil {
		return err
	}
	if report.Cycle != nil {
		return report.Cycle
	}
	return nil
}
