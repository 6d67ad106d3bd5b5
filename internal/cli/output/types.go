package output

import "time"

// ReportOutput is the structured form of one analyzed query.
type ReportOutput struct {
	Name        string             `json:"name" yaml:"name"`
	FilePath    string             `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Hash        string             `json:"hash" yaml:"hash"`
	Status      string             `json:"status" yaml:"status"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	ResultKey   string             `json:"result_key,omitempty" yaml:"result_key,omitempty"`
	Tables      []TableOutput      `json:"tables,omitempty" yaml:"tables,omitempty"`
	Columns     []ColumnOutput     `json:"columns,omitempty" yaml:"columns,omitempty"`
	Edges       []EdgeOutput       `json:"edges,omitempty" yaml:"edges,omitempty"`
	Order       []string           `json:"order,omitempty" yaml:"order,omitempty"`
	Levels      [][]string         `json:"levels,omitempty" yaml:"levels,omitempty"`
	Cycles      [][]string         `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	Diagnostics []DiagnosticOutput `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	DurationMS  int64              `json:"duration_ms" yaml:"duration_ms"`
}

// TableOutput is a registered table entity.
type TableOutput struct {
	Key           string `json:"key" yaml:"key"`
	CanonicalName string `json:"canonical_name" yaml:"canonical_name"`
	Alias         string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Kind          string `json:"kind" yaml:"kind"`
	Scope         string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// ColumnOutput is one projected column and its dependencies.
type ColumnOutput struct {
	Context          string   `json:"context" yaml:"context"`
	OutputName       string   `json:"output_name" yaml:"output_name"`
	SourceExpression string   `json:"source_expression" yaml:"source_expression"`
	Dependencies     []string `json:"dependencies" yaml:"dependencies"`
	Unresolved       []string `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// EdgeOutput is a producer to consumer edge.
type EdgeOutput struct {
	Producer string `json:"producer" yaml:"producer"`
	Consumer string `json:"consumer" yaml:"consumer"`
}

// DiagnosticOutput is a non-fatal analysis problem.
type DiagnosticOutput struct {
	Kind    string `json:"kind" yaml:"kind"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// OrderOutput is the result of the order command.
type OrderOutput struct {
	Name   string     `json:"name" yaml:"name"`
	Order  []string   `json:"order,omitempty" yaml:"order,omitempty"`
	Levels [][]string `json:"levels,omitempty" yaml:"levels,omitempty"`
	Cycles [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
}

// DepsOutput is the result of the deps command.
type DepsOutput struct {
	Name       string   `json:"name" yaml:"name"`
	Key        string   `json:"key" yaml:"key"`
	Transitive bool     `json:"transitive" yaml:"transitive"`
	Upstream   []string `json:"upstream" yaml:"upstream"`
	Downstream []string `json:"downstream" yaml:"downstream"`
}

// BatchOutput is the result of analyzing a directory.
type BatchOutput struct {
	Dir             string        `json:"dir" yaml:"dir"`
	Queries         []BatchEntry  `json:"queries" yaml:"queries"`
	Dependencies    []EdgeOutput  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ExternalSources []string      `json:"external_sources,omitempty" yaml:"external_sources,omitempty"`
	Summary         BatchSummary  `json:"summary" yaml:"summary"`
	Saved           []string      `json:"saved,omitempty" yaml:"saved,omitempty"`
	Duration        time.Duration `json:"-" yaml:"-"`
}

// BatchEntry summarizes one query in a batch.
type BatchEntry struct {
	Name        string `json:"name" yaml:"name"`
	FilePath    string `json:"file_path" yaml:"file_path"`
	Status      string `json:"status" yaml:"status"`
	Tables      int    `json:"tables" yaml:"tables"`
	Columns     int    `json:"columns" yaml:"columns"`
	Diagnostics int    `json:"diagnostics" yaml:"diagnostics"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int   `json:"total" yaml:"total"`
	Failed     int   `json:"failed" yaml:"failed"`
	DurationMS int64 `json:"duration_ms" yaml:"duration_ms"`
}

// HistoryEntry is one stored snapshot in a listing.
type HistoryEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Hash        string    `json:"hash" yaml:"hash"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Tables      int       `json:"tables" yaml:"tables"`
	Edges       int       `json:"edges" yaml:"edges"`
	Diagnostics int       `json:"diagnostics" yaml:"diagnostics"`
	Cyclic      bool      `json:"cyclic" yaml:"cyclic"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// VersionOutput is the result of the version command.
type VersionOutput struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

// ExportOutput is the result of the export command.
type ExportOutput struct {
	Driver  string `json:"driver" yaml:"driver"`
	Target  string `json:"target" yaml:"target"`
	Queries int    `json:"queries" yaml:"queries"`
	Tables  int    `json:"tables" yaml:"tables"`
	Columns int    `json:"columns" yaml:"columns"`
	Edges   int    `json:"edges" yaml:"edges"`
	Failed  int    `json:"failed" yaml:"failed"`
}
