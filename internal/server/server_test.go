package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	clitestutil "github.com/leapstack-labs/querygraph/internal/cli/testutil"
	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/testutil"
)

func newTestServer(t *testing.T, persist, watch bool) (*Server, *engine.Engine, string) {
	t.Helper()
	root := clitestutil.SetupTestProject(t)

	cfg := engine.Config{
		QueriesDir: filepath.Join(root, "queries"),
		Logger:     testutil.NewTestLogger(t),
	}
	if persist {
		cfg.StatePath = filepath.Join(root, ".querygraph", "state.db")
	}
	eng, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	srv := New(Config{Engine: eng, Watch: watch, Logger: testutil.NewTestLogger(t)})
	return srv, eng, root
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, false, false)
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAnalyze(t *testing.T) {
	srv, _, _ := newTestServer(t, false, false)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/analyze",
		`{"name": "q", "sql": "WITH s AS (SELECT c.id FROM customers c) SELECT s.id FROM s"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	report := decode[output.ReportOutput](t, rec)
	assert.Equal(t, "q", report.Name)
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, []string{"c", "s", "__result__"}, report.Order)

	rec = do(t, h, http.MethodPost, "/api/analyze", `{"sql": "SELECT FROM"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decode[output.ReportOutput](t, rec)
	assert.Equal(t, "inline", report.Name)
	assert.Equal(t, "parse_error", report.Status)
}

func TestAnalyze_BadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t, false, false)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "SELECT 1"},
		{"unknown field", `{"query": "SELECT 1"}`},
		{"empty sql", `{"name": "x", "sql": "  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestQueries(t *testing.T) {
	srv, _, _ := newTestServer(t, false, false)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/queries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[output.BatchOutput](t, rec)
	assert.Equal(t, 3, batch.Summary.Total)
	assert.Len(t, batch.Dependencies, 2)

	rec = do(t, h, http.MethodGet, "/api/queries/customer_revenue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[output.ReportOutput](t, rec)
	assert.Equal(t, "customer_revenue", report.Name)
	assert.NotEmpty(t, report.Tables)

	rec = do(t, h, http.MethodGet, "/api/queries/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeps(t *testing.T) {
	srv, _, _ := newTestServer(t, false, false)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/queries/customer_revenue/deps/__result__", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	deps := decode[output.DepsOutput](t, rec)
	assert.False(t, deps.Transitive)
	assert.NotEmpty(t, deps.Upstream)
	assert.Empty(t, deps.Downstream)

	rec = do(t, h, http.MethodGet, "/api/queries/customer_revenue/deps/__result__?transitive=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	transitive := decode[output.DepsOutput](t, rec)
	assert.True(t, transitive.Transitive)
	assert.GreaterOrEqual(t, len(transitive.Upstream), len(deps.Upstream))

	rec = do(t, h, http.MethodGet, "/api/queries/customer_revenue/deps/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshots_WithoutStore(t *testing.T) {
	srv, _, _ := newTestServer(t, false, false)
	h := srv.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/snapshots", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/snapshots/abc", "").Code)
}

func TestSnapshots(t *testing.T) {
	srv, eng, _ := newTestServer(t, true, false)
	h := srv.Handler()
	ctx := context.Background()

	report, err := eng.AnalyzeSQL(ctx, "orders", "SELECT o.id FROM orders o")
	require.NoError(t, err)
	id, err := eng.Save(ctx, report)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/api/snapshots?query=orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]output.HistoryEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)

	rec = do(t, h, http.MethodGet, "/api/snapshots/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"o", "__result__"}, decode[output.ReportOutput](t, rec).Order)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/snapshots/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/snapshots?limit=-1", "").Code)
}

func TestWatchModeCachesAnalysis(t *testing.T) {
	srv, eng, _ := newTestServer(t, false, true)
	h := srv.Handler()

	batch := decode[output.BatchOutput](t, do(t, h, http.MethodGet, "/api/queries", ""))
	assert.Equal(t, 3, batch.Summary.Total)

	extra := filepath.Join(eng.Config().QueriesDir, "extra.sql")
	require.NoError(t, os.WriteFile(extra, []byte("SELECT 1 AS one"), 0o600))

	batch = decode[output.BatchOutput](t, do(t, h, http.MethodGet, "/api/queries", ""))
	assert.Equal(t, 3, batch.Summary.Total, "served from cache until refreshed")

	_, err := srv.Refresh(context.Background())
	require.NoError(t, err)
	batch = decode[output.BatchOutput](t, do(t, h, http.MethodGet, "/api/queries", ""))
	assert.Equal(t, 4, batch.Summary.Total)
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv, eng, _ := newTestServer(t, false, false)
	srv = New(Config{Engine: eng, Addr: "127.0.0.1:0", Logger: testutil.NewTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
