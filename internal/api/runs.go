package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/benchtop-io/benchd/dataset"
	"github.com/benchtop-io/benchd/internal/log"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type runsResponse struct {
	Runs   []dataset.Run `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunLimit)
	if err != nil || limit < 1 {
		writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []dataset.Run{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs, Total: total, Limit: limit, Offset: offset})
}

// lookupRun answers 404 or 500 itself when the run cannot be loaded.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*dataset.Run, bool) {
	guid := chi.URLParam(r, "guid")
	run, err := s.store.GetRunByGUID(r.Context(), guid)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("run %s not found", guid))
		} else {
			writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("load run: %v", err))
		}
		return nil, false
	}
	return run, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunExport renders a run as a download. The export is built in
// memory first so a failure can still answer with a clean error body.
func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	var (
		buf         bytes.Buffer
		contentType string
		err         error
	)
	switch format {
	case "csv":
		contentType = "text/csv; charset=utf-8"
		err = dataset.WriteCSV(r.Context(), s.store, run.ID, &buf)
	case "json":
		contentType = "application/json"
		err = dataset.WriteJSON(r.Context(), s.store, run.ID, &buf)
	default:
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
		return
	}
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "export.failed").
			Str(log.FieldGUID, run.GUID).
			Str("format", format).
			Msg("run export failed")
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("export run: %v", err))
		return
	}

	filename := fmt.Sprintf("run-%s.%s", run.GUID, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
