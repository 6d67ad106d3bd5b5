package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/state"
)

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [query]",
		Short: "List stored analysis snapshots",
		Long: `List snapshots stored with --save, newest first. Pass a query name to
only list that query's snapshots.`,
		Example: `  # All snapshots
  querygraph history

  # The last five snapshots of one query
  querygraph history revenue --limit 5

  # Show a stored snapshot in full
  querygraph history show 3f2a9c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runHistory(cmd, name, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of snapshots to list (0 for all)")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeleteCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := cmdCtx.Engine.Store().GetSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := output.FromSnapshot(snap)
			if ok, err := cmdCtx.Renderer.Structured(out); ok {
				return err
			}
			renderReport(cmdCtx.Renderer, out)
			return nil
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Engine.Store().DeleteSnapshot(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmdCtx.Renderer.Success("Deleted snapshot " + args[0])
			return nil
		},
	}
}

func runHistory(cmd *cobra.Command, name string, limit int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := cmdCtx.Engine.Store().ListSnapshots(cmd.Context(), state.ListFilter{Name: name, Limit: limit})
	if err != nil {
		return err
	}
	entries := output.FromHistory(list)

	r := cmdCtx.Renderer
	if ok, err := r.Structured(entries); ok {
		return err
	}

	r.Header(1, "Snapshots")
	if len(entries) == 0 {
		r.Println(r.Muted("No snapshots stored. Use --save with analyze, batch or watch."))
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "ok"
		switch {
		case e.Error != "":
			status = "error"
		case e.Cyclic:
			status = "cycle"
		}
		rows = append(rows, []string{
			e.ID,
			e.Name,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Hash,
			strconv.Itoa(e.Tables),
			strconv.Itoa(e.Edges),
			strconv.Itoa(e.Diagnostics),
			status,
		})
	}
	r.Table([]string{"ID", "Query", "Created", "Hash", "Tables", "Edges", "Diagnostics", "Status"}, rows)
	r.Println(r.Muted(fmt.Sprintf("%d snapshot(s)", len(entries))))
	return nil
}
