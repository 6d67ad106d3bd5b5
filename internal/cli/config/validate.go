package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/lineage"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := lineage.ParseKeyStrategy(c.Registry); err != nil {
		return err
	}
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	switch strings.ToLower(c.Export.Driver) {
	case "", "duckdb", "postgres", "postgresql":
	default:
		return fmt.Errorf("invalid export driver %q: must be one of: duckdb, postgres", c.Export.Driver)
	}
	return nil
}

// ValidateQueriesDir checks that the queries directory exists.
func (c *Config) ValidateQueriesDir() error {
	info, err := os.Stat(c.QueriesDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("queries directory does not exist: %s\nHint: Create the directory or use --queries-dir to specify a different path", c.QueriesDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("queries path is not a directory: %s", c.QueriesDir)
	}
	return nil
}

// ParseLogLevel parses debug, info, warn or error. The empty string is warn.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("invalid log level %q: must be one of: debug, info, warn, error", s)
}
