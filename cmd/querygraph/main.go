// Command querygraph analyzes SQL query dependency graphs and column lineage.
package main

import (
	"os"

	"github.com/leapstack-labs/querygraph/internal/cli"
)

// Set with -ldflags at build time.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	if version != "" {
		cli.Version = version
	}
	if commit != "" {
		cli.GitCommit = commit
	}
	if date != "" {
		cli.BuildDate = date
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
