package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/lineage"
)

const (
	replPrompt     = "querygraph> "
	replContPrompt = "       ...> "
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Analyze SQL interactively",
		Long: `Start an interactive shell. Type or paste a query ending with a
semicolon to see its tables, column lineage and evaluation order.

Dot-commands inspect the last analyzed query; type .help for the list.`,
		Example: `  querygraph repl
  querygraph repl --registry flat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd)
		},
	}
	return cmd
}

func runREPL(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	sess := newREPLSession(cmd.Context(), cmdCtx.Engine, cmdCtx.Renderer)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), "repl_history"),
		AutoComplete:    sess.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := cmdCtx.Renderer
	r.Println("querygraph REPL (registry: " + cmdCtx.Cfg.Registry + ")")
	r.Println(r.Muted("End queries with ; and type .help for commands, .quit to exit"))
	r.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			sess.reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		prompt, quit := sess.line(line)
		if quit {
			return nil
		}
		rl.SetPrompt(prompt)
	}
}

// replSession holds the state of one interactive session.
type replSession struct {
	ctx context.Context
	eng *engine.Engine
	r   *output.Renderer

	buf  strings.Builder
	last *engine.Report
	seq  int
}

func newREPLSession(ctx context.Context, eng *engine.Engine, r *output.Renderer) *replSession {
	return &replSession{ctx: ctx, eng: eng, r: r}
}

func (s *replSession) reset() {
	s.buf.Reset()
}

// line consumes one input line. It returns the prompt for the next line
// and whether the session should end.
func (s *replSession) line(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		if s.buf.Len() > 0 {
			return replContPrompt, false
		}
		return replPrompt, false
	}

	if s.buf.Len() == 0 && strings.HasPrefix(text, ".") {
		return replPrompt, s.dot(text)
	}

	s.buf.WriteString(text)
	if !strings.HasSuffix(text, ";") {
		s.buf.WriteString("\n")
		return replContPrompt, false
	}

	sql := strings.TrimSuffix(s.buf.String(), ";")
	s.buf.Reset()
	s.analyze(sql)
	return replPrompt, false
}

func (s *replSession) analyze(sql string) {
	s.seq++
	report, err := s.eng.AnalyzeSQL(s.ctx, fmt.Sprintf("q%d", s.seq), sql)
	if err != nil {
		s.r.Error(err.Error())
		return
	}
	s.last = report

	out := output.FromReport(report)
	if ok, err := s.r.Structured(out); ok {
		if err != nil {
			s.r.Error(err.Error())
		}
		return
	}
	renderReport(s.r, out)
}

// dot runs a dot-command and reports whether it ends the session.
func (s *replSession) dot(text string) bool {
	parts := strings.Fields(text)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		s.r.Printf("%s\n", replHelp)

	case ".tables":
		if g := s.graph(); g != nil {
			for _, t := range g.Tables() {
				s.r.Printf("%-20s %-10s %s\n", t.Key, t.Kind.String(), t.CanonicalName)
			}
		}

	case ".order":
		if s.graph() != nil {
			out := output.FromReport(s.last)
			renderOrder(s.r, out.Order, out.Levels, out.Cycles)
		}

	case ".deps", ".lineage":
		if len(parts) < 2 {
			s.r.Warning("Usage: " + parts[0] + " <key>")
			return false
		}
		if s.graph() == nil {
			return false
		}
		out, err := output.FromDeps(s.last, parts[1], strings.EqualFold(parts[0], ".lineage"))
		if err != nil {
			s.r.Error(err.Error())
			return false
		}
		renderDeps(s.r, out)

	case ".save":
		if s.last == nil {
			s.r.Warning("Nothing analyzed yet")
			return false
		}
		id, err := s.eng.Save(s.ctx, s.last)
		if err != nil {
			s.r.Error(err.Error())
			return false
		}
		s.r.Success("Saved snapshot " + id)

	default:
		s.r.Warning(fmt.Sprintf("Unknown command: %s (type .help for commands)", parts[0]))
	}
	return false
}

// graph returns the graph of the last query, warning when there is none.
func (s *replSession) graph() *lineage.Graph {
	switch {
	case s.last == nil:
		s.r.Warning("Nothing analyzed yet")
		return nil
	case s.last.Graph == nil:
		s.r.Warning(fmt.Sprintf("%s has no graph: %v", s.last.Name, s.last.Err()))
		return nil
	}
	return s.last.Graph
}

func (s *replSession) keys(string) []string {
	if s.last == nil || s.last.Graph == nil {
		return nil
	}
	return s.last.Graph.Keys()
}

func (s *replSession) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".order"),
		readline.PcItem(".deps", readline.PcItemDynamic(s.keys)),
		readline.PcItem(".lineage", readline.PcItemDynamic(s.keys)),
		readline.PcItem(".save"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

const replHelp = `
Commands:
  .help           Show this help message
  .tables         List the entities of the last query
  .order          Show the evaluation order of the last query
  .deps <key>     Direct producers and consumers of an entity
  .lineage <key>  Transitive producers and consumers of an entity
  .save           Store a snapshot of the last query
  .quit / .exit   Exit the REPL

Tips:
  - Queries must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completes commands and entity keys
`
