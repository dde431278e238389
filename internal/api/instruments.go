package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/internal/audit"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/parameter"
)

// maxBodyBytes caps PUT bodies. A parameter value is a few bytes; a
// megabyte is already absurd.
const maxBodyBytes = 1 << 20

type instrumentsResponse struct {
	Station     string                `json:"station"`
	TakenAt     time.Time             `json:"taken_at"`
	Instruments []instrument.Snapshot `json:"instruments"`
}

type parameterValue struct {
	Instrument string    `json:"instrument"`
	Name       string    `json:"name"`
	Label      string    `json:"label,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Value      any       `json:"value"`
	Timestamp  time.Time `json:"ts"`
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	snap, err := s.station.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, fmt.Sprintf("station snapshot failed: %v", err))
		return
	}

	names := make([]string, 0, len(snap.Instruments))
	for name := range snap.Instruments {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := instrumentsResponse{
		Station:     snap.Station,
		TakenAt:     snap.TakenAt,
		Instruments: make([]instrument.Snapshot, 0, len(names)),
	}
	for _, name := range names {
		resp.Instruments = append(resp.Instruments, snap.Instruments[name])
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveParameter looks the parameter up from the URL, answering 404
// itself when either part is unknown.
func (s *Server) resolveParameter(w http.ResponseWriter, r *http.Request) (*parameter.Parameter, bool) {
	name := chi.URLParam(r, "name")
	paramName := chi.URLParam(r, "param")

	inst, ok := s.station.Instrument(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown instrument %q", name))
		return nil, false
	}
	for _, p := range inst.Parameters() {
		if p.Name() == paramName {
			return p, true
		}
	}
	writeError(w, r, http.StatusNotFound, fmt.Sprintf("instrument %q has no parameter %q", name, paramName))
	return nil, false
}

func (s *Server) handleParameterGet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolveParameter(w, r)
	if !ok {
		return
	}
	if !p.Gettable() {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("%s.%s is not gettable", chi.URLParam(r, "name"), p.Name()))
		return
	}

	value, err := p.Get(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, parameterValue{
		Instrument: chi.URLParam(r, "name"),
		Name:       p.Name(),
		Label:      p.Label(),
		Unit:       p.Unit(),
		Value:      value,
		Timestamp:  p.Snapshot().Timestamp,
	})
}

func (s *Server) handleParameterSet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolveParameter(w, r)
	if !ok {
		return
	}
	if !p.Settable() {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("%s.%s is not settable", chi.URLParam(r, "name"), p.Name()))
		return
	}

	var body struct {
		Value any `json:"value"`
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if body.Value == nil {
		writeError(w, r, http.StatusBadRequest, `body needs a "value" field`)
		return
	}

	actor := r.RemoteAddr
	reqID := log.RequestIDFromContext(r.Context())
	if err := p.Set(r.Context(), body.Value); err != nil {
		if errors.Is(err, parameter.ErrInvalidValue) {
			s.audit.ParameterSet(actor, chi.URLParam(r, "name"), p.Name(), body.Value, audit.ResultDenied, reqID)
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.audit.ParameterSet(actor, chi.URLParam(r, "name"), p.Name(), body.Value, audit.ResultFailure, reqID)
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	s.audit.ParameterSet(actor, chi.URLParam(r, "name"), p.Name(), body.Value, audit.ResultSuccess, reqID)

	snap := p.Snapshot()
	writeJSON(w, http.StatusOK, parameterValue{
		Instrument: chi.URLParam(r, "name"),
		Name:       p.Name(),
		Label:      p.Label(),
		Unit:       p.Unit(),
		Value:      snap.Value,
		Timestamp:  snap.Timestamp,
	})
}
