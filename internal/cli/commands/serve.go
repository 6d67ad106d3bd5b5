package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Serve query analysis over a JSON HTTP API",
		Long: `Start an HTTP server that exposes the analysis of a queries directory
and ad-hoc analysis of posted SQL.

Endpoints:
  GET  /healthz
  POST /api/analyze                      {"name": "...", "sql": "..."}
  GET  /api/queries                      directory summary
  GET  /api/queries/{name}               full report of one query
  GET  /api/queries/{name}/deps/{key}    producers and consumers (?transitive=true)
  GET  /api/snapshots                    stored snapshots (?query=&limit=)
  GET  /api/snapshots/{id}               one stored snapshot

With --watch (the default) the directory analysis is cached and refreshed
when .sql files change.`,
		Example: `  # Serve the configured queries directory on localhost:8765
  querygraph serve

  # Listen on all interfaces without file watching
  querygraph serve ./sql --addr :9000 --watch=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runServe(cmd, dir)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: localhost:8765)")
	cmd.Flags().Bool("watch", true, "Cache the analysis and refresh it on file changes")

	return cmd
}

func runServe(cmd *cobra.Command, dir string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	if dir == "" {
		if err := cfg.ValidateQueriesDir(); err != nil {
			return err
		}
		dir = cfg.QueriesDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Engine:   cmdCtx.Engine,
		Dir:      dir,
		Addr:     cfg.Serve.Addr,
		Watch:    cfg.Serve.Watch,
		Debounce: cfg.Watch.Debounce,
		Logger:   cmdCtx.Logger,
	})

	r := cmdCtx.Renderer
	r.Println(r.Muted("Serving " + dir + " on http://" + cfg.Serve.Addr))
	return srv.Serve(ctx)
}
