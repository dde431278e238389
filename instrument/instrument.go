// Package instrument holds the building blocks drivers are made of: a
// parameter registry with snapshotting, and the TCP-connected variant
// that layers identity queries and Ask/Write helpers on a transport.
package instrument

import (
	"context"
	"strings"
	"time"

	"github.com/benchtop-io/benchd/parameter"
)

// Instrument is the surface the station and the API work against.
type Instrument interface {
	Name() string
	Parameters() []*parameter.Parameter
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}

// IDN is a parsed identity reply.
type IDN struct {
	Vendor   string `json:"vendor,omitempty"`
	Model    string `json:"model,omitempty"`
	Serial   string `json:"serial,omitempty"`
	Firmware string `json:"firmware,omitempty"`
}

// ParseIDN splits a comma-separated identity reply into its four
// conventional fields. Short replies leave trailing fields empty,
// extra fields fold into Firmware. It never fails: identity strings
// vary too much across vendors to reject any.
func ParseIDN(reply string) IDN {
	parts := strings.SplitN(strings.TrimSpace(reply), ",", 4)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	var idn IDN
	switch len(parts) {
	case 4:
		idn.Firmware = parts[3]
		fallthrough
	case 3:
		idn.Serial = parts[2]
		fallthrough
	case 2:
		idn.Model = parts[1]
		fallthrough
	case 1:
		idn.Vendor = parts[0]
	}
	return idn
}

// String renders the identity the way connect logs show it.
func (i IDN) String() string {
	fields := make([]string, 0, 4)
	for _, f := range []string{i.Vendor, i.Model, i.Serial, i.Firmware} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return strings.Join(fields, " ")
}

// Snapshot is a point-in-time record of one instrument's state, built
// from the parameters' cached values.
type Snapshot struct {
	Name       string               `json:"name"`
	Driver     string               `json:"driver,omitempty"`
	Address    string               `json:"address,omitempty"`
	IDN        IDN                  `json:"idn"`
	Parameters []parameter.Snapshot `json:"parameters"`
	TakenAt    time.Time            `json:"taken_at"`
}
