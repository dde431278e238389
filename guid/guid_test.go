package guid

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benchtop-io/benchd/config"
)

func TestGenerateRandomSampleHasNoFixedPrefix(t *testing.T) {
	cfg := config.GUIDComponents{GUIDType: config.GUIDTypeRandomSample, Location: 1, WorkStation: 7}

	prefixes := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		g, err := Generate(cfg)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if err := Validate(g); err != nil {
			t.Fatalf("Validate(%q) error = %v", g, err)
		}
		prefix := g[:8]
		if prefix == "aaaaaaaa" {
			t.Fatalf("random sample produced legacy prefix: %q", g)
		}
		prefixes[prefix] = struct{}{}
	}

	if len(prefixes) < 2 {
		t.Fatalf("expected varying sample prefixes, got %d distinct in 32 draws", len(prefixes))
	}
}

func TestGenerateExplicitSamplePrefix(t *testing.T) {
	cfg := config.GUIDComponents{
		GUIDType:    config.GUIDTypeExplicitSample,
		Sample:      10,
		Location:    3,
		WorkStation: 42,
	}

	for i := 0; i < 5; i++ {
		g, err := Generate(cfg)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !strings.HasPrefix(g, "0000000a-") {
			t.Fatalf("Generate() = %q, want prefix 0000000a-", g)
		}
		c, err := Parse(g)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", g, err)
		}
		if c.Sample != 10 || c.Location != 3 || c.WorkStation != 42 {
			t.Fatalf("Parse(%q) = %+v, want sample=10 location=3 work_station=42", g, c)
		}
	}
}

func TestGenerateExplicitZeroSampleUsesLegacySentinel(t *testing.T) {
	cfg := config.GUIDComponents{GUIDType: config.GUIDTypeExplicitSample, Sample: 0}

	g, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(g, "aaaaaaaa-") {
		t.Fatalf("Generate() = %q, want legacy prefix aaaaaaaa-", g)
	}
}

func TestGenerateRejectsBadPolicies(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GUIDComponents
	}{
		{
			name: "sample without explicit type",
			cfg:  config.GUIDComponents{GUIDType: config.GUIDTypeRandomSample, Sample: 5},
		},
		{
			name: "unknown guid_type",
			cfg:  config.GUIDComponents{GUIDType: "sequential"},
		},
		{
			name: "sample beyond 32 bits",
			cfg:  config.GUIDComponents{GUIDType: config.GUIDTypeExplicitSample, Sample: 1 << 33},
		},
		{
			name: "location out of range",
			cfg:  config.GUIDComponents{GUIDType: config.GUIDTypeRandomSample, Location: 300},
		},
		{
			name: "work_station out of range",
			cfg:  config.GUIDComponents{GUIDType: config.GUIDTypeRandomSample, WorkStation: 1 << 24},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Generate(tt.cfg); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Generate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		c    Components
	}{
		{
			name: "typical",
			c:    Components{Sample: 10, TimestampMS: 1724400000123, Location: 3, WorkStation: 42},
		},
		{
			name: "zero components",
			c:    Components{},
		},
		{
			name: "max fields",
			c:    Components{Sample: 0xffffffff, TimestampMS: 0xffffffffffffffff, Location: 0xff, WorkStation: 0xffffff},
		},
		{
			name: "legacy sample",
			c:    Components{Sample: 0xaaaaaaaa, TimestampMS: 1, Location: 0, WorkStation: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.c)
			if err := Validate(s); err != nil {
				t.Fatalf("Validate(%q) error = %v", s, err)
			}
			got, err := Parse(s)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", s, err)
			}
			if got != tt.c {
				t.Fatalf("Parse(New(c)) = %+v, want %+v", got, tt.c)
			}
		})
	}
}

func TestGenerateEncodesTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 30, 15, 250_000_000, time.UTC)
	cfg := config.GUIDComponents{GUIDType: config.GUIDTypeExplicitSample, Sample: 1}

	g, err := generateAt(cfg, now)
	if err != nil {
		t.Fatalf("generateAt() error = %v", err)
	}
	c, err := Parse(g)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", g, err)
	}
	if got, want := int64(c.TimestampMS), now.UnixMilli(); got != want {
		t.Fatalf("timestamp = %d, want %d", got, want)
	}
	if !c.Time().Equal(now.Truncate(time.Millisecond)) {
		t.Fatalf("Time() = %v, want %v", c.Time(), now.Truncate(time.Millisecond))
	}
}

func TestParseRejectsMalformedStrings(t *testing.T) {
	tests := []struct {
		name string
		s    string
	}{
		{name: "empty", s: ""},
		{name: "too short", s: "abc"},
		{name: "too long", s: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaaaa"},
		{name: "missing dashes", s: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{name: "dash misplaced", s: "aaaaaaa-aaaaa-aaaa-aaaa-aaaaaaaaaaaa"},
		{name: "non-hex digit", s: "gaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"},
		{name: "whitespace", s: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaa "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.s); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Parse(%q) error = %v, want ErrInvalid", tt.s, err)
			}
		})
	}
}

func TestValidateAcceptsUppercaseHex(t *testing.T) {
	if err := Validate("AAAAAAAA-0000-0000-0000-0000FF00000A"); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestComponentsIsZero(t *testing.T) {
	if !(Components{}).IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	if (Components{Sample: 1}).IsZero() {
		t.Fatal("non-zero components should not report IsZero")
	}
}
