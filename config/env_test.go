package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		setEnv     bool
		defaultVal string
		want       string
	}{
		{"env set", "from-env", true, "default", "from-env"},
		{"env missing", "", false, "default", "default"},
		{"env empty", "", true, "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "BENCHD_TEST_STRING"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			}
			if got := ParseString(key, tt.defaultVal); got != tt.want {
				t.Errorf("ParseString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		setEnv     bool
		defaultVal int
		want       int
	}{
		{"valid int", "42", true, 1, 42},
		{"negative int", "-7", true, 1, -7},
		{"invalid int", "not-a-number", true, 5, 5},
		{"empty", "", true, 5, 5},
		{"missing", "", false, 9, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "BENCHD_TEST_INT"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			}
			if got := ParseInt(key, tt.defaultVal); got != tt.want {
				t.Errorf("ParseInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseInt64(t *testing.T) {
	key := "BENCHD_TEST_INT64"
	t.Setenv(key, "4294967295")
	if got := ParseInt64(key, 0); got != 4294967295 {
		t.Errorf("ParseInt64() = %d, want 4294967295", got)
	}
	t.Setenv(key, "nope")
	if got := ParseInt64(key, 3); got != 3 {
		t.Errorf("ParseInt64() fallback = %d, want 3", got)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		setEnv     bool
		defaultVal bool
		want       bool
	}{
		{"true", "true", true, false, true},
		{"one", "1", true, false, true},
		{"yes", "YES", true, false, true},
		{"false", "false", true, true, false},
		{"zero", "0", true, true, false},
		{"no", "no", true, true, false},
		{"invalid", "maybe", true, true, true},
		{"empty", "", true, true, true},
		{"missing", "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "BENCHD_TEST_BOOL"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			}
			if got := ParseBool(key, tt.defaultVal); got != tt.want {
				t.Errorf("ParseBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		setEnv     bool
		defaultVal time.Duration
		want       time.Duration
	}{
		{"seconds", "5s", true, time.Second, 5 * time.Second},
		{"milliseconds", "250ms", true, time.Second, 250 * time.Millisecond},
		{"invalid", "fast", true, 2 * time.Second, 2 * time.Second},
		{"missing", "", false, 3 * time.Second, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "BENCHD_TEST_DURATION"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			}
			if got := ParseDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("ParseDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	key := "BENCHD_TEST_FLOAT"
	t.Setenv(key, "0.25")
	if got := ParseFloat(key, 1); got != 0.25 {
		t.Errorf("ParseFloat() = %v, want 0.25", got)
	}
	t.Setenv(key, "fast")
	if got := ParseFloat(key, 1.5); got != 1.5 {
		t.Errorf("ParseFloat() fallback = %v, want 1.5", got)
	}
}
