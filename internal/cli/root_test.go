package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querygraph/internal/cli/config"
	"github.com/leapstack-labs/querygraph/internal/cli/output"
	clitestutil "github.com/leapstack-labs/querygraph/internal/cli/testutil"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	cmd := NewRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"analyze", "order", "deps", "batch", "dag", "watch", "history", "export", "serve", "repl", "version", "completion"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "queries-dir", "state", "registry", "strict", "result-key", "concurrency", "log-level", "verbose", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRoot_AnalyzeWithFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	sql := "WITH a AS (SELECT t.id FROM orders t), b AS (SELECT t.id FROM payments t) SELECT a.id FROM a JOIN b ON a.id = b.id"

	out, _, err := run(t, "analyze", "-e", sql, "-o", "json")
	require.NoError(t, err)
	var scoped output.ReportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &scoped))
	assert.Contains(t, keys(scoped), "b/t")

	out, _, err = run(t, "analyze", "-e", sql, "-o", "json", "--registry", "flat", "--result-key", "final")
	require.NoError(t, err)
	var flat output.ReportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &flat))
	assert.NotContains(t, keys(flat), "b/t")
	assert.Equal(t, "final", flat.ResultKey)
}

func TestRoot_ProjectConfig(t *testing.T) {
	root := clitestutil.SetupTestProject(t)
	t.Chdir(root)

	out, _, err := run(t, "batch", "-o", "json")
	require.NoError(t, err)

	var batch output.BatchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, 3, batch.Summary.Total)
	assert.True(t, strings.HasSuffix(batch.Dir, "queries"))
}

func TestRoot_StrictFlag(t *testing.T) {
	t.Chdir(t.TempDir())

	out, _, err := run(t, "analyze", "-e", "SELECT a FROM x UNION SELECT a FROM y", "-o", "json", "--strict")
	require.NoError(t, err)
	var report output.ReportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "unsupported", report.Status)
}

func TestRoot_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := run(t, "analyze", "-e", "SELECT 1", "--registry", "nested")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key strategy")
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	t.Chdir(t.TempDir())

	_, errOut, err := run(t, "analyze", "-e", "SELECT o.id FROM orders o", "-o", "json", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "configuration loaded")
}

func TestCompletionCommand(t *testing.T) {
	out, _, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "querygraph")

	_, _, err = run(t, "completion", "tcsh")
	assert.Error(t, err)
}

func keys(r output.ReportOutput) []string {
	out := make([]string, 0, len(r.Tables))
	for _, t := range r.Tables {
		out = append(out, t.Key)
	}
	return out
}
