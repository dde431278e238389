// Package guid generates and parses the globally unique identifiers
// assigned to dataset runs.
//
// A GUID is 32 hex digits in the 8-4-4-4-12 layout. The components are
// packed as: sample id (8 hex), timestamp in milliseconds since the Unix
// epoch (16 hex, spread over the middle groups), location code (2 hex)
// and work station id (6 hex):
//
//	ssssssss-tttt-tttt-tttt-ttttllwwwwww
package guid

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benchtop-io/benchd/config"
)

// ErrInvalid marks strings that do not parse as a run GUID.
var ErrInvalid = errors.New("invalid guid")

// legacySample is the sample field used when an explicit sample id is
// configured as zero. Identifiers generated that way carry the historic
// "aaaaaaaa" prefix; the random_sample default never produces it.
const legacySample uint32 = 0xaaaaaaaa

// Components are the unpacked fields of a run GUID.
type Components struct {
	Sample      uint32
	TimestampMS uint64
	Location    uint8
	WorkStation uint32 // 24-bit
}

// Time returns the encoded generation timestamp.
func (c Components) Time() time.Time {
	return time.UnixMilli(int64(c.TimestampMS)).UTC()
}

// IsZero reports whether every component is zero.
func (c Components) IsZero() bool {
	return c == Components{}
}

// String formats the components in the canonical 8-4-4-4-12 layout.
func (c Components) String() string {
	t := fmt.Sprintf("%016x", c.TimestampMS)
	return fmt.Sprintf("%08x-%s-%s-%s-%s%02x%06x",
		c.Sample, t[:4], t[4:8], t[8:12], t[12:16], c.Location, c.WorkStation&0xffffff)
}

// New formats the given components as a GUID string.
func New(c Components) string {
	return c.String()
}

// Generate produces a fresh GUID according to the configured policy.
//
// With guid_type "random_sample" (the default) the sample field is drawn
// randomly for every identifier, so generated GUIDs do not share a fixed
// prefix. With "explicit_sample" the configured sample id becomes a
// deterministic prefix; a zero sample id maps to the legacy sentinel.
func Generate(g config.GUIDComponents) (string, error) {
	return generateAt(g, time.Now())
}

func generateAt(g config.GUIDComponents, now time.Time) (string, error) {
	var sample uint32
	switch g.GUIDType {
	case config.GUIDTypeExplicitSample:
		if g.Sample < 0 || g.Sample > 0xffffffff {
			return "", fmt.Errorf("%w: sample id %d does not fit in 32 bits", ErrInvalid, g.Sample)
		}
		sample = uint32(g.Sample)
	case config.GUIDTypeRandomSample, "":
		if g.Sample != 0 {
			return "", fmt.Errorf("%w: explicit sample id requires guid_type %q", ErrInvalid, config.GUIDTypeExplicitSample)
		}
		s, err := randomSample()
		if err != nil {
			return "", fmt.Errorf("draw random sample: %w", err)
		}
		sample = s
	default:
		return "", fmt.Errorf("%w: unknown guid_type %q", ErrInvalid, g.GUIDType)
	}

	if sample == 0 {
		sample = legacySample
	}

	if g.Location < 0 || g.Location > 255 {
		return "", fmt.Errorf("%w: location %d out of range 0..255", ErrInvalid, g.Location)
	}
	if g.WorkStation < 0 || g.WorkStation > 0xffffff {
		return "", fmt.Errorf("%w: work_station %d out of range 0..16777215", ErrInvalid, g.WorkStation)
	}

	c := Components{
		Sample:      sample,
		TimestampMS: uint64(now.UnixMilli()),
		Location:    uint8(g.Location),
		WorkStation: uint32(g.WorkStation),
	}
	return c.String(), nil
}

// randomSample draws a non-zero 32-bit sample id.
func randomSample() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b[:])
	if n == 0 {
		n = 1
	}
	return n, nil
}

// Parse unpacks a GUID string into its components.
func Parse(s string) (Components, error) {
	if err := Validate(s); err != nil {
		return Components{}, err
	}

	hexed := strings.ReplaceAll(s, "-", "")

	sample, err := strconv.ParseUint(hexed[0:8], 16, 32)
	if err != nil {
		return Components{}, fmt.Errorf("%w: sample field: %v", ErrInvalid, err)
	}
	ts, err := strconv.ParseUint(hexed[8:24], 16, 64)
	if err != nil {
		return Components{}, fmt.Errorf("%w: timestamp field: %v", ErrInvalid, err)
	}
	loc, err := strconv.ParseUint(hexed[24:26], 16, 8)
	if err != nil {
		return Components{}, fmt.Errorf("%w: location field: %v", ErrInvalid, err)
	}
	ws, err := strconv.ParseUint(hexed[26:32], 16, 32)
	if err != nil {
		return Components{}, fmt.Errorf("%w: work_station field: %v", ErrInvalid, err)
	}

	return Components{
		Sample:      uint32(sample),
		TimestampMS: ts,
		Location:    uint8(loc),
		WorkStation: uint32(ws),
	}, nil
}

// Validate checks that s has the canonical GUID shape without unpacking it.
func Validate(s string) error {
	if len(s) != 36 {
		return fmt.Errorf("%w: length %d, want 36", ErrInvalid, len(s))
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return fmt.Errorf("%w: expected dash at position %d", ErrInvalid, i)
			}
		default:
			if !isHexDigit(r) {
				return fmt.Errorf("%w: non-hex character %q at position %d", ErrInvalid, r, i)
			}
		}
	}
	return nil
}

func isHexDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	case r >= 'A' && r <= 'F':
		return true
	}
	return false
}
