package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/config"
	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/lineage"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// The snapshot store is opened only when persist is true.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, persist bool) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger, persist)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		_ = eng.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	// validated at load time
	mode, _ := output.ParseMode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	strict, _ := strconv.ParseBool(os.Getenv(config.EnvPrefix + "STRICT"))
	return &config.Config{
		QueriesDir:   getEnvOrDefault(config.EnvPrefix+"QUERIES_DIR", config.DefaultQueriesDir),
		StatePath:    getEnvOrDefault(config.EnvPrefix+"STATE_PATH", config.DefaultStateFile),
		Registry:     getEnvOrDefault(config.EnvPrefix+"REGISTRY", config.DefaultRegistry),
		ResultKey:    getEnvOrDefault(config.EnvPrefix+"RESULT_KEY", config.DefaultResultKey),
		Strict:       strict,
		LogLevel:     config.DefaultLogLevel,
		OutputFormat: os.Getenv(config.EnvPrefix + "OUTPUT"),
		Watch:        config.WatchConfig{Debounce: config.DefaultDebounce},
		Serve:  config.ServeConfig{Addr: config.DefaultServeAddr, Watch: true},
		Export: config.ExportConfig{
			Driver: getEnvOrDefault(config.EnvPrefix+"EXPORT__DRIVER", "duckdb"),
			Path:   getEnvOrDefault(config.EnvPrefix+"EXPORT__PATH", config.DefaultExportDB),
			Schema: os.Getenv(config.EnvPrefix + "EXPORT__SCHEMA"),
		},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(cfg *config.Config, logger *slog.Logger, persist bool) (*engine.Engine, error) {
	keys, err := lineage.ParseKeyStrategy(cfg.Registry)
	if err != nil {
		return nil, err
	}

	engineCfg := engine.Config{
		QueriesDir:  cfg.QueriesDir,
		KeyStrategy: keys,
		ResultKey:   cfg.ResultKey,
		Strict:      cfg.Strict,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}
	if persist {
		engineCfg.StatePath = cfg.StatePath
	}

	return engine.New(engineCfg)
}

// readSQL returns the query named by the command arguments: inline SQL from
// --sql, standard input for "-", otherwise a file path. The path is empty
// unless a file was named.
func readSQL(cmd *cobra.Command, args []string, inline string) (name, sql, path string, err error) {
	switch {
	case inline != "":
		if len(args) > 0 {
			return "", "", "", fmt.Errorf("cannot use --sql together with a file argument")
		}
		return "inline", inline, "", nil
	case len(args) == 0:
		return "", "", "", fmt.Errorf("a query file, - for stdin, or --sql is required")
	case args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return "stdin", string(data), "", nil
	}
	return "", "", args[0], nil
}

// analyzeInput analyzes the query named by args or --sql. A non-empty
// name replaces the derived query name.
func analyzeInput(cmd *cobra.Command, eng *engine.Engine, args []string, inline, name string) (*engine.Report, error) {
	n, sql, path, err := readSQL(cmd, args, inline)
	if err != nil {
		return nil, err
	}

	var r *engine.Report
	if path != "" {
		r, err = eng.AnalyzeFile(cmd.Context(), path)
	} else {
		r, err = eng.AnalyzeSQL(cmd.Context(), n, sql)
	}
	if err != nil {
		return nil, err
	}
	if name != "" {
		r.Name = name
	}
	return r, nil
}
