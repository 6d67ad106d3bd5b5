package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/dag"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	Parents(string) []string
	Children(string) []string
	NodeCount() int
	EdgeCount() int
}

// DAGOutput is the JSON form of the query dependency graph.
type DAGOutput struct {
	Levels       []DAGLevel `json:"levels" yaml:"levels"`
	Cycles       [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	TotalQueries int        `json:"total_queries" yaml:"total_queries"`
	TotalEdges   int        `json:"total_edges" yaml:"total_edges"`
}

// DAGLevel is one group of queries that do not depend on each other.
type DAGLevel struct {
	Level   int       `json:"level" yaml:"level"`
	Queries []DAGNode `json:"queries" yaml:"queries"`
}

// DAGNode is one query and its neighbours.
type DAGNode struct {
	Name      string   `json:"name" yaml:"name"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty" yaml:"used_by,omitempty"`
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag [dir]",
		Short: "Show the dependency graph between queries",
		Long: `Display how the queries of a directory depend on each other.

A query depends on another when it reads a base table named after it.
Queries are grouped by level: every query in a level only depends on
queries in earlier levels.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG of the configured queries directory
  querygraph dag

  # Output as JSON
  querygraph dag --output json

  # Output as Markdown
  querygraph dag ./sql --output markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runDAG(cmd, dir)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command, dir string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	if dir == "" {
		if err := cmdCtx.Cfg.ValidateQueriesDir(); err != nil {
			return err
		}
	}

	res, err := eng.AnalyzeDir(cmd.Context(), dir)
	if err != nil {
		return fmt.Errorf("failed to analyze queries: %w", err)
	}

	graph := res.ProjectGraph()

	levels, err := graph.ExecutionLevels()
	var cycle *dag.CycleError
	if err != nil && !errors.As(err, &cycle) {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON, output.ModeYAML:
		err = dagStructured(r, graph, levels, cycle)
	case output.ModeMarkdown:
		dagMarkdown(r, graph, levels, cycle)
	default:
		dagText(r, graph, levels, cycle)
	}
	if err != nil {
		return err
	}
	if cycle != nil {
		return cycle
	}
	return nil
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string, cycle *dag.CycleError) {
	styles := r.Styles()

	r.Header(1, "Query Dependency Graph")

	if cycle != nil {
		r.Println(styles.Error.Render("Cycles:"))
		for _, c := range cycle.Components {
			r.Printf("  %s\n", strings.Join(c, " ↔ "))
		}
		r.Println("")
	}

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, name := range level {
			deps := graph.Parents(name)
			children := graph.Children(name)

			r.Printf("  %s\n", styles.QueryName.Render(name))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d queries, %d dependencies", graph.NodeCount(), graph.EdgeCount())))
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string, cycle *dag.CycleError) {
	r.Println(output.FormatHeader(1, "Query Dependency Graph"))
	r.Println("")

	if cycle != nil {
		r.Println(output.FormatHeader(2, "Cycles"))
		for _, c := range cycle.Components {
			r.Printf("- %s\n", strings.Join(c, ", "))
		}
		r.Println("")
	}

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Roots)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, name := range level {
			deps := graph.Parents(name)
			children := graph.Children(name)

			r.Printf("- %s\n", name)
			if len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Queries", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))
}

// dagStructured outputs DAG as JSON or YAML.
func dagStructured(r *output.Renderer, graph GraphQuerier, levels [][]string, cycle *dag.CycleError) error {
	dagOutput := DAGOutput{
		Levels:       make([]DAGLevel, 0, len(levels)),
		TotalQueries: graph.NodeCount(),
		TotalEdges:   graph.EdgeCount(),
	}
	if cycle != nil {
		dagOutput.Cycles = cycle.Components
	}

	for i, level := range levels {
		dagLevel := DAGLevel{
			Level:   i,
			Queries: make([]DAGNode, 0, len(level)),
		}

		for _, name := range level {
			dagLevel.Queries = append(dagLevel.Queries, DAGNode{
				Name:      name,
				DependsOn: graph.Parents(name),
				UsedBy:    graph.Children(name),
			})
		}

		dagOutput.Levels = append(dagOutput.Levels, dagLevel)
	}

	_, err := r.Structured(dagOutput)
	return err
}
