package transport

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable = errors.New("transport: instrument unreachable or connection failure")
	ErrTimeout     = errors.New("transport: exchange timed out")
	ErrClosed      = errors.New("transport: connection closed")
	ErrBadResponse = errors.New("transport: malformed instrument response")
)

// Error is a rich error type that wraps the sentinel errors with
// exchange context.
type Error struct {
	Sentinel   error
	Instrument string
	Command    string
	Err        error // Nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Instrument, e.Sentinel)
	if e.Command != "" {
		msg = fmt.Sprintf("%s: command %q", msg, e.Command)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the nested cause, so
// errors.Is matches the taxonomy and errors.As still reaches the
// underlying net.Error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}
