package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldJobID     = "job_id"
	FieldGUID      = "guid"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Instrument fields
	FieldInstrument = "instrument"
	FieldDriver     = "driver"
	FieldAddress    = "address"
	FieldParameter  = "parameter"
	FieldCommand    = "command"

	// Measurement fields
	FieldExperiment = "experiment"
	FieldSample     = "sample"
	FieldRows       = "rows"
	FieldStatus     = "status"

	// Path fields
	FieldPath = "path"
)
