// Package rohdeschwarz drives Rohde & Schwarz bench instruments over
// their standard SCPI LAN interface.
package rohdeschwarz

import (
	"github.com/benchtop-io/benchd/transport"
)

// Driver identifiers as they appear in station inventories.
const (
	DriverHMC8043 = "rohdeschwarz_hmc8043"
	DriverHMF2550 = "rohdeschwarz_hmf2550"
)

// Options configures the connection to a Rohde & Schwarz device.
type Options struct {
	Transport transport.Options
}
