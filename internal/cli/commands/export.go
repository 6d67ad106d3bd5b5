package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/config"
	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/export"
	"github.com/leapstack-labs/querygraph/internal/state"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [dir]",
		Short: "Write lineage of a query directory into DuckDB or PostgreSQL",
		Long: `Analyze all .sql files under a directory and write their tables,
column lineage and edges into lineage tables (qg_queries, qg_tables,
qg_columns, qg_column_dependencies, qg_edges) of a DuckDB file or a
PostgreSQL database.

Rows of every exported query are replaced; other queries already in the
target are kept. Connection settings come from the export section of
querygraph.yaml or QUERYGRAPH_EXPORT__* environment variables.`,
		Example: `  # Export to the default DuckDB file (.querygraph/lineage.duckdb)
  querygraph export

  # Export to another DuckDB file
  querygraph export ./sql --target lineage.duckdb

  # Export to PostgreSQL, schema lineage
  QUERYGRAPH_EXPORT__HOST=db QUERYGRAPH_EXPORT__DATABASE=analytics \
    querygraph export --driver postgres --schema lineage`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runExport(cmd, dir)
		},
	}

	cmd.Flags().String("driver", "", "Export target driver (duckdb|postgres)")
	cmd.Flags().String("target", "", "DuckDB file to write (default: .querygraph/lineage.duckdb)")
	cmd.Flags().String("schema", "", "Schema for the lineage tables")

	return cmd
}

func runExport(cmd *cobra.Command, dir string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if dir == "" {
		if err := cmdCtx.Cfg.ValidateQueriesDir(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	res, err := cmdCtx.Engine.AnalyzeDir(ctx, dir)
	if err != nil {
		return err
	}

	target := exportConfig(cmdCtx.Cfg.Export)
	exp, err := export.Open(ctx, target, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = exp.Close() }()

	if err := exp.EnsureSchema(ctx); err != nil {
		return err
	}

	snaps := make([]*state.Snapshot, 0, len(res.Reports))
	for _, r := range res.Reports {
		snaps = append(snaps, engine.ToSnapshot(r))
	}
	stats, err := exp.Export(ctx, snaps)
	if err != nil {
		return err
	}

	out := output.ExportOutput{
		Driver:  target.Driver,
		Target:  exportTarget(target),
		Queries: stats.Queries,
		Tables:  stats.Tables,
		Columns: stats.Columns,
		Edges:   stats.Edges,
		Failed:  res.Failed(),
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(out); ok {
		return err
	}

	r.Header(1, "Export")
	r.Table([]string{"Target", "Queries", "Tables", "Columns", "Edges"}, [][]string{{
		out.Target,
		strconv.Itoa(out.Queries),
		strconv.Itoa(out.Tables),
		strconv.Itoa(out.Columns),
		strconv.Itoa(out.Edges),
	}})
	if out.Failed > 0 {
		r.Warning(fmt.Sprintf("%d queries failed to analyze; exported with status error", out.Failed))
	} else {
		r.Success(fmt.Sprintf("Exported %d queries", out.Queries))
	}
	return nil
}

func exportConfig(c config.ExportConfig) export.Config {
	cfg := export.Config{
		Driver:   c.Driver,
		Path:     c.Path,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.User,
		Password: c.Password,
		Schema:   c.Schema,
	}
	if cfg.Driver == "" {
		cfg.Driver = export.DriverDuckDB
	}
	if c.SSLMode != "" {
		cfg.Options = map[string]string{"sslmode": c.SSLMode}
	}
	return cfg
}

// exportTarget describes where the export went, without credentials.
func exportTarget(c export.Config) string {
	if c.Driver == export.DriverDuckDB {
		return c.Path
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	target := host + "/" + c.Database
	if c.Schema != "" {
		target += "." + c.Schema
	}
	return target
}
