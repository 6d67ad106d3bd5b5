package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-analyze queries when files change",
		Long: `Analyze a directory of queries, then watch it and re-run the analysis
whenever a .sql file is written, created, removed or renamed. Bursts of
changes are collapsed into one run after the debounce period.

Stop with Ctrl+C.`,
		Example: `  # Watch the configured queries directory
  querygraph watch

  # Watch with a longer quiet period and store snapshots of changes
  querygraph watch ./sql --debounce 500ms --save`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runWatch(cmd, dir)
		},
	}

	cmd.Flags().Duration("debounce", 0, "Quiet period before re-analyzing (default from config: 100ms)")
	cmd.Flags().Bool("save", false, "Store snapshots of changed queries")

	return cmd
}

func runWatch(cmd *cobra.Command, dir string) error {
	cfg := getConfig()
	save := cfg.Watch.Save

	cmdCtx, cleanup, err := NewCommandContext(cmd, save)
	if err != nil {
		return err
	}
	defer cleanup()

	if dir == "" {
		if err := cfg.ValidateQueriesDir(); err != nil {
			return err
		}
		dir = cfg.QueriesDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := cmdCtx.Renderer
	run := func(ctx context.Context, _ []string) error {
		out, err := analyzeBatch(ctx, cmdCtx.Engine, dir, save)
		if err != nil {
			return err
		}
		if ok, err := r.Structured(out); !ok {
			renderBatch(r, out)
		} else if err != nil {
			return err
		}
		return nil
	}

	if err := run(ctx, nil); err != nil {
		r.Error(err.Error())
	}

	debounce := cfg.Watch.Debounce
	if debounce <= 0 {
		debounce = watch.DefaultDebounce
	}
	r.Println(r.Muted("Watching " + dir + " (debounce " + debounce.Round(time.Millisecond).String() + ")"))

	w := watch.New(dir, run,
		watch.WithDebounce(debounce),
		watch.WithLogger(cmdCtx.Logger))
	return w.Run(ctx)
}
