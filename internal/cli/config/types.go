// Package config provides configuration management for the querygraph CLI.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	QueriesDir   string       `koanf:"queries_dir"`
	StatePath    string       `koanf:"state_path"`
	Registry     string       `koanf:"registry"`
	ResultKey    string       `koanf:"result_key"`
	Strict       bool         `koanf:"strict"`
	Concurrency  int          `koanf:"concurrency"`
	Verbose      bool         `koanf:"verbose"`
	LogLevel     string       `koanf:"log_level"`
	OutputFormat string       `koanf:"output"`
	Watch        WatchConfig  `koanf:"watch"`
	Export       ExportConfig `koanf:"export"`
	Serve        ServeConfig  `koanf:"serve"`

	// ProjectRoot is the directory relative paths are resolved against.
	// It is not read from configuration.
	ProjectRoot string `koanf:"-"`
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
	Save     bool          `koanf:"save"`
}

// ServeConfig holds settings for the serve command.
type ServeConfig struct {
	Addr  string `koanf:"addr"`
	Watch bool   `koanf:"watch"`
}

// ExportConfig holds the lineage export target.
type ExportConfig struct {
	Driver   string `koanf:"driver"` // duckdb or postgres
	Path     string `koanf:"path"`   // duckdb file
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`
	SSLMode  string `koanf:"sslmode"`
}

// Default configuration values.
const (
	DefaultQueriesDir = "queries"
	DefaultStateFile  = ".querygraph/state.db"
	DefaultRegistry   = "scoped"
	DefaultResultKey  = "__result__"
	DefaultLogLevel   = "warn"
	DefaultOutput     = "auto" // TTY=text, non-TTY=markdown
	DefaultDebounce   = 100 * time.Millisecond
	DefaultExportDB   = ".querygraph/lineage.duckdb"
	DefaultServeAddr  = "localhost:8765"
)

// configFileNames are searched in order.
var configFileNames = []string{"querygraph.yaml", "querygraph.yml"}
