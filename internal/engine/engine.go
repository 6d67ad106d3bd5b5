// Package engine analyzes SQL queries and directories of query files.
// It ties together parsing, lineage construction, graph ordering and the
// optional snapshot store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/leapstack-labs/querygraph/internal/lineage"
	"github.com/leapstack-labs/querygraph/internal/state"
)

// Engine runs analyses with a fixed configuration.
type Engine struct {
	logger *slog.Logger
	store  *state.SQLiteStore // nil when StatePath is empty
	cfg    Config
}

// Config holds engine configuration.
type Config struct {
	// QueriesDir is the default directory for batch analysis
	QueriesDir string
	// StatePath is the SQLite snapshot database; empty disables persistence
	StatePath string
	// KeyStrategy selects how colliding registry keys are handled
	KeyStrategy lineage.KeyStrategy
	// ResultKey overrides the key of the result entity
	ResultKey string
	// Strict fails a query on shapes that cannot be traced
	Strict bool
	// Concurrency bounds parallel file analysis; 0 uses GOMAXPROCS
	Concurrency int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine. The state store is opened and migrated only when
// cfg.StatePath is set.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if _, err := lineage.ParseKeyStrategy(string(cfg.KeyStrategy)); err != nil {
		return nil, err
	}

	logger.Debug("initializing engine",
		"queries_dir", cfg.QueriesDir,
		"state_path", cfg.StatePath,
		"registry", cfg.KeyStrategy,
		"strict", cfg.Strict)

	e := &Engine{logger: logger, cfg: cfg}

	if cfg.StatePath != "" {
		if cfg.StatePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}

		store := state.NewSQLiteStore(logger)
		if err := store.Open(cfg.StatePath); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize state schema: %w", err)
		}
		e.store = store
	}

	return e, nil
}

// Close releases the state store, if any.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Store returns the snapshot store, or nil when persistence is disabled.
func (e *Engine) Store() state.Store {
	if e.store == nil {
		return nil
	}
	return e.store
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency > 0 {
		return e.cfg.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

// buildOptions returns the lineage options for one query.
func (e *Engine) buildOptions(keys lineage.KeyStrategy, strict bool) []lineage.Option {
	return []lineage.Option{
		lineage.WithKeyStrategy(keys),
		lineage.WithResultKey(e.cfg.ResultKey),
		lineage.WithStrict(strict),
		lineage.WithLogger(e.logger),
	}
}

// checkContext returns ctx.Err() wrapped with the operation name.
func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
