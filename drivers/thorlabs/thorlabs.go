// Package thorlabs drives Thorlabs benchtop devices that speak the
// vendor's terminal-style line protocol over a serial-to-ethernet
// bridge. Both directions terminate with CR and every command line is
// echoed back before the reply, so the transport runs with Echo and
// DrainBefore.
package thorlabs

import (
	"github.com/benchtop-io/benchd/transport"
)

// Driver identifiers as they appear in station inventories.
const (
	DriverMCLS    = "thorlabs_mcls"
	DriverMC2000B = "thorlabs_mc2000b"
)

// Options configures the connection to a Thorlabs device.
type Options struct {
	// Transport tunes the TCP link. Terminators, echo handling and
	// pre-exchange draining are overridden with what the devices
	// actually speak.
	Transport transport.Options
}

func serialOptions(opts transport.Options) transport.Options {
	opts.WriteTerminator = "\r"
	opts.ReadTerminator = "\r"
	opts.Echo = true
	opts.DrainBefore = true
	return opts
}
