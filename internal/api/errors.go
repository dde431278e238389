package api

import (
	"encoding/json"
	"net/http"

	"github.com/benchtop-io/benchd/internal/log"
)

// errorEnvelope is the uniform error body. The request id lets a
// client line its failure up with the daemon's log.
type errorEnvelope struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorEnvelope{
		Error:     msg,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
