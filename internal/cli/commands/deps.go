package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
)

// NewDepsCommand creates the deps command.
func NewDepsCommand() *cobra.Command {
	var (
		inline     string
		transitive bool
	)

	cmd := &cobra.Command{
		Use:   "deps <key> [file|-]",
		Short: "Show what a table entity depends on and what depends on it",
		Long: `Look up one registry key in a query's lineage graph and list its
producers (upstream) and consumers (downstream).

By default only direct neighbours are shown. With --transitive every
entity reachable through the graph is listed.`,
		Example: `  # Direct producers and consumers of a CTE
  querygraph deps stg_orders queries/revenue.sql

  # Everything the result depends on
  querygraph deps __result__ queries/revenue.sql --transitive`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cmd, args[0], args[1:], inline, transitive)
		},
	}

	cmd.Flags().StringVarP(&inline, "sql", "e", "", "SQL text to analyze instead of a file")
	cmd.Flags().BoolVar(&transitive, "transitive", false, "Follow dependencies through the whole graph")

	return cmd
}

func runDeps(cmd *cobra.Command, key string, args []string, inline string, transitive bool) error {
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
	out, err := output.FromDeps(report, key, transitive)
	if err != nil {
		return err
	}

	if ok, err := r.Structured(out); ok {
		return err
	}

	renderDeps(r, out)
	return nil
}

// renderDeps writes the upstream and downstream keys in text or markdown form.
func renderDeps(r *output.Renderer, out output.DepsOutput) {
	styles := r.Styles()
	markdown := r.EffectiveMode() == output.ModeMarkdown

	r.Header(1, "Dependencies: "+out.Key)
	for _, section := range []struct {
		title string
		keys  []string
	}{
		{"Upstream", out.Upstream},
		{"Downstream", out.Downstream},
	} {
		r.Header(2, section.title)
		if len(section.keys) == 0 {
			r.Println(r.Muted("(none)"))
		}
		for _, k := range section.keys {
			if markdown {
				r.Printf("- %s\n", k)
			} else {
				r.Printf("  %s\n", styles.TableKey.Render(k))
			}
		}
		r.Println("")
	}
}
