// Package telemetry provides OpenTelemetry tracing utilities for benchd.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Instrument attributes
	InstrumentNameKey    = "instrument.name"
	InstrumentDriverKey  = "instrument.driver"
	InstrumentAddressKey = "instrument.address"

	// Wire command attributes
	CommandKey     = "scpi.command"
	CommandKindKey = "scpi.kind"

	// Measurement run attributes
	RunGUIDKey       = "run.guid"
	RunExperimentKey = "run.experiment"
	RunRowsKey       = "run.rows"
	RunStatusKey     = "run.status"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// InstrumentAttributes creates instrument-related span attributes.
func InstrumentAttributes(name, driver, address string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if name != "" {
		attrs = append(attrs, attribute.String(InstrumentNameKey, name))
	}
	if driver != "" {
		attrs = append(attrs, attribute.String(InstrumentDriverKey, driver))
	}
	if address != "" {
		attrs = append(attrs, attribute.String(InstrumentAddressKey, address))
	}
	return attrs
}

// CommandAttributes creates wire-command span attributes.
func CommandAttributes(command, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandKey, command),
		attribute.String(CommandKindKey, kind),
	}
}

// RunAttributes creates measurement-run span attributes.
func RunAttributes(guid, experiment string, rows int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RunGUIDKey, guid),
	}
	if experiment != "" {
		attrs = append(attrs, attribute.String(RunExperimentKey, experiment))
	}
	if rows > 0 {
		attrs = append(attrs, attribute.Int(RunRowsKey, rows))
	}
	return attrs
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
