package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
	"github.com/leapstack-labs/querygraph/internal/engine"
	"github.com/leapstack-labs/querygraph/internal/state"
)

const maxBodyBytes = 1 << 20

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("sql is required"))
		return
	}
	if req.Name == "" {
		req.Name = "inline"
	}

	report, err := s.engine.AnalyzeSQL(r.Context(), req.Name, req.SQL)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, output.FromReport(report))
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	res, err := s.current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, output.FromBatch(res, nil))
}

// findReport looks up the report for the {name} URL parameter.
func (s *Server) findReport(w http.ResponseWriter, r *http.Request) (*engine.Report, bool) {
	res, err := s.current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	name := chi.URLParam(r, "name")
	for _, report := range res.Reports {
		if report.Name == name {
			return report, true
		}
	}
	writeError(w, http.StatusNotFound, errors.New("query not found: "+name))
	return nil, false
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	report, ok := s.findReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, output.FromReport(report))
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	report, ok := s.findReport(w, r)
	if !ok {
		return
	}
	transitive, _ := strconv.ParseBool(r.URL.Query().Get("transitive"))

	out, err := output.FromDeps(report, chi.URLParam(r, "key"), transitive)
	switch {
	case errors.Is(err, output.ErrUnknownKey):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, engine.ErrNoStore)
		return
	}

	filter := state.ListFilter{Name: r.URL.Query().Get("query"), Limit: 20}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	list, err := store.ListSnapshots(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, output.FromHistory(list))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, engine.ErrNoStore)
		return
	}

	snap, err := store.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, state.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, output.FromSnapshot(snap))
	}
}
