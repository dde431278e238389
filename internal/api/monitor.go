package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/benchtop-io/benchd/internal/jobs"
)

// handleMonitor serves the monitor job's cached station snapshot. On a
// miss it snapshots live and repopulates, so the endpoint works even
// when the monitor is disabled.
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if payload, ok := s.cache.Get(jobs.SnapshotKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	snap, err := s.station.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, fmt.Sprintf("station snapshot failed: %v", err))
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("marshal snapshot: %v", err))
		return
	}
	s.cache.Set(jobs.SnapshotKey, payload, s.cfg.CacheTTL)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleMonitorStatus reports the monitor job's counters. 404 when the
// daemon runs without the monitor.
func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeError(w, r, http.StatusNotFound, "monitor is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Status())
}
