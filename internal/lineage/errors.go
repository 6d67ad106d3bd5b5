package lineage

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/querygraph/internal/dag"
)

// ErrUnsupportedQueryShape is returned by Build in strict mode when a query
// body is not a plain SELECT.
var ErrUnsupportedQueryShape = errors.New("unsupported query shape")

// ErrUnaliasedDerivedTable is returned by Build in strict mode when a
// subquery in FROM has no alias.
var ErrUnaliasedDerivedTable = errors.New("derived table without alias")

// ErrCycleDetected is matched by the error TopologicalOrder returns on a
// cyclic graph.
var ErrCycleDetected = dag.ErrCycleDetected

// CycleError carries the keys that take part in a cycle.
type CycleError = dag.CycleError

// DiagnosticKind classifies irregularities found while building a graph.
type DiagnosticKind int

const (
	// UnsupportedQueryShape marks a body that is not a plain SELECT, such as
	// a set operation or VALUES list. No lineage is produced for it.
	UnsupportedQueryShape DiagnosticKind = iota
	// UnaliasedDerivedTable marks a FROM subquery without an alias. It is
	// skipped entirely.
	UnaliasedDerivedTable
	// UnresolvedReference marks an edge endpoint or column dependency that
	// does not resolve to a registered table.
	UnresolvedReference
)

var diagnosticKindNames = [...]string{
	UnsupportedQueryShape: "unsupported_query_shape",
	UnaliasedDerivedTable: "unaliased_derived_table",
	UnresolvedReference:   "unresolved_reference",
}

func (k DiagnosticKind) String() string {
	if int(k) >= 0 && int(k) < len(diagnosticKindNames) {
		return diagnosticKindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k DiagnosticKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic is a non-fatal irregularity recorded during Build.
type Diagnostic struct {
	Kind    DiagnosticKind
	Context string // Key of the entity being built when it was found
	Subject string // Offending identifier, key or shape
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s]: %s", d.Kind, d.Context, d.Message)
}
