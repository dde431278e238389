// Package transport implements the wire connections benchd uses to talk
// to bench instruments: line-delimited SCPI text over TCP sockets.
//
// Drivers depend on the Transport interface only; the TCP implementation
// handles terminators, pacing, deadlines and text encoding so driver code
// can deal in plain commands.
package transport

import "context"

// Transport is the exchange interface drivers talk through. Write sends
// a command that expects no reply; Query sends a command and reads one
// reply line. Implementations serialize exchanges, so a reply always
// belongs to the command that asked for it.
type Transport interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
	Close() error
}
