package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
)

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	var (
		inline string
		name   string
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Show the lineage graph of a query",
		Long: `Parse a SQL query and show its table entities, column lineage,
dependency edges, evaluation order and diagnostics.

The query is read from a file, from standard input when the argument is -,
or from --sql. Frontmatter in a leading /*--- ... ---*/ block may set the
query name, registry mode and strict mode.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Analyze a query file
  querygraph analyze queries/revenue.sql

  # Analyze inline SQL
  querygraph analyze --sql "WITH s AS (SELECT id FROM t) SELECT id FROM s"

  # Read from stdin and emit JSON
  cat query.sql | querygraph analyze - -o json

  # Store a snapshot of the result
  querygraph analyze queries/revenue.sql --save`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, inline, name, save)
		},
	}

	cmd.Flags().StringVarP(&inline, "sql", "e", "", "SQL text to analyze instead of a file")
	cmd.Flags().StringVar(&name, "name", "", "Query name (overrides frontmatter and file name)")
	cmd.Flags().BoolVar(&save, "save", false, "Store a snapshot of the result")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, inline, name string, save bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, save)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer

	report, err := analyzeInput(cmd, cmdCtx.Engine, args, inline, name)
	if err != nil {
		return err
	}

	if save {
		id, err := cmdCtx.Engine.Save(cmd.Context(), report)
		if err != nil {
			return err
		}
		cmdCtx.Logger.Info("snapshot saved", "name", report.Name, "id", id)
	}

	out := output.FromReport(report)
	if ok, err := r.Structured(out); ok {
		return err
	}

	renderReport(r, out)
	if err := report.Err(); err != nil {
		return fmt.Errorf("analysis of %s incomplete: %w", report.Name, err)
	}
	return nil
}

// renderReport writes a report in text or markdown form.
func renderReport(r *output.Renderer, out output.ReportOutput) {
	styles := r.Styles()
	markdown := r.EffectiveMode() == output.ModeMarkdown

	r.Header(1, "Query: "+out.Name)
	status := output.Title(out.Status)
	if markdown {
		r.Println(output.FormatKeyValue("Status", status))
		if out.FilePath != "" {
			r.Println(output.FormatKeyValue("File", out.FilePath))
		}
		r.Println(output.FormatKeyValue("Hash", out.Hash))
	} else {
		r.Printf("%s %s\n", styles.Muted.Render("status:"), statusStyle(r, out.Status).Render(status))
		if out.FilePath != "" {
			r.Printf("%s %s\n", styles.Muted.Render("file:"), out.FilePath)
		}
	}
	if out.Error != "" {
		r.Println("")
		r.Error(out.Error)
	}
	r.Println("")

	if len(out.Tables) > 0 {
		r.Header(2, "Tables")
		rows := make([][]string, 0, len(out.Tables))
		for _, t := range out.Tables {
			rows = append(rows, []string{t.Key, t.CanonicalName, t.Kind, t.Alias, t.Scope})
		}
		r.Table([]string{"Key", "Name", "Kind", "Alias", "Scope"}, rows)
		r.Println("")
	}

	if len(out.Columns) > 0 {
		r.Header(2, "Columns")
		rows := make([][]string, 0, len(out.Columns))
		for _, c := range out.Columns {
			deps := strings.Join(c.Dependencies, ", ")
			if len(c.Unresolved) > 0 {
				deps += " (unresolved: " + strings.Join(c.Unresolved, ", ") + ")"
			}
			rows = append(rows, []string{c.Context, c.OutputName, c.SourceExpression, deps})
		}
		r.Table([]string{"Context", "Column", "Expression", "Depends On"}, rows)
		r.Println("")
	}

	if len(out.Edges) > 0 {
		r.Header(2, "Edges")
		for _, e := range out.Edges {
			if markdown {
				r.Printf("- %s → %s\n", e.Producer, e.Consumer)
			} else {
				r.Printf("  %s → %s\n", styles.TableKey.Render(e.Producer), styles.TableKey.Render(e.Consumer))
			}
		}
		r.Println("")
	}

	renderOrder(r, out.Order, out.Levels, out.Cycles)

	if len(out.Diagnostics) > 0 {
		r.Header(2, "Diagnostics")
		for _, d := range out.Diagnostics {
			line := fmt.Sprintf("[%s] %s", d.Kind, d.Message)
			if d.Context != "" {
				line += " (in " + d.Context + ")"
			}
			if markdown {
				r.Printf("- %s\n", line)
			} else {
				r.Printf("  %s\n", styles.Warning.Render(line))
			}
		}
		r.Println("")
	}
}

// renderOrder writes the evaluation order, its levels and any cycles.
func renderOrder(r *output.Renderer, order []string, levels [][]string, cycles [][]string) {
	styles := r.Styles()
	markdown := r.EffectiveMode() == output.ModeMarkdown

	if len(cycles) > 0 {
		r.Header(2, "Cycles")
		for _, c := range cycles {
			if markdown {
				r.Printf("- %s\n", strings.Join(c, ", "))
			} else {
				r.Printf("  %s\n", styles.Error.Render(strings.Join(c, " ↔ ")))
			}
		}
		r.Println("")
		return
	}

	if len(order) > 0 {
		r.Header(2, "Order")
		for i, key := range order {
			r.Printf("%d. %s\n", i+1, key)
		}
		r.Println("")
	}

	if len(levels) > 0 {
		r.Header(2, "Levels")
		for i, level := range levels {
			if markdown {
				r.Printf("- Level %d: %s\n", i, strings.Join(level, ", "))
			} else {
				r.Printf("  %s %s\n", styles.Muted.Render(fmt.Sprintf("level %d:", i)), strings.Join(level, ", "))
			}
		}
		r.Println("")
	}
}

func statusStyle(r *output.Renderer, status string) lipgloss.Style {
	styles := r.Styles()
	switch status {
	case "ok":
		return styles.Success
	case "warnings":
		return styles.Warning
	}
	return styles.Error
}
