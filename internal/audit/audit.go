// Package audit writes a who/what/when trail of bench mutations:
// parameter writes and throttled clients. Audit lines share the
// process log stream but carry log_type=audit so they can be split
// off and retained on their own schedule.
package audit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchtop-io/benchd/internal/log"
)

// EventType names what happened.
type EventType string

const (
	EventParameterSet EventType = "parameter.set"
	EventRateLimited  EventType = "api.ratelimited"
)

// Outcomes of an audited action.
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultFailure = "failure"
)

// Event is one audit record. Actor is the remote address for API
// calls or "console" for the local operator.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Result    string            `json:"result"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Logger emits audit events.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger builds an audit logger on the process-wide log output.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith builds an audit logger over a specific zerolog
// logger, mainly so tests can capture the output.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{
		logger: base.With().Str("log_type", "audit").Logger(),
	}
}

// Log writes one audit event. Audit records are plain facts, so they
// always log at info regardless of outcome.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	evt := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RequestID != "" {
		evt = evt.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		evt = evt.Str(key, value)
	}
	evt.Msg("audit event")
}

// ParameterSet records a write to an instrument parameter. The value
// is recorded as attempted, whether or not the write stuck.
func (l *Logger) ParameterSet(actor, instrument, param string, value any, result, requestID string) {
	l.Log(Event{
		Type:      EventParameterSet,
		Actor:     actor,
		Action:    "set parameter",
		Resource:  instrument + "." + param,
		Result:    result,
		RequestID: requestID,
		Details: map[string]string{
			"value": fmt.Sprintf("%v", value),
		},
	})
}

// RateLimited records a client bounced by the API rate limiter.
func (l *Logger) RateLimited(actor, path string) {
	l.Log(Event{
		Type:     EventRateLimited,
		Actor:    actor,
		Action:   "rate limit exceeded",
		Resource: path,
		Result:   ResultDenied,
	})
}
