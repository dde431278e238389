package validators

import (
	"strings"
	"testing"
)

func TestNumbers(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		wantErr bool
	}{
		{name: "within range", v: 16.0},
		{name: "lower bound", v: 0.0},
		{name: "upper bound", v: 32.05},
		{name: "int value", v: 12},
		{name: "below range", v: -0.1, wantErr: true},
		{name: "above range", v: 32.06, wantErr: true},
		{name: "string", v: "5", wantErr: true},
		{name: "nil", v: nil, wantErr: true},
	}

	val := Numbers(0, 32.05)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := val.Validate(tt.v)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.v, err, tt.wantErr)
			}
		})
	}
}

func TestInts(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		wantErr bool
	}{
		{name: "int", v: 7},
		{name: "int64", v: int64(14)},
		{name: "whole float", v: 3.0},
		{name: "fractional float", v: 3.5, wantErr: true},
		{name: "below range", v: 0, wantErr: true},
		{name: "above range", v: 15, wantErr: true},
		{name: "string", v: "7", wantErr: true},
	}

	val := Ints(1, 14)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := val.Validate(tt.v)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.v, err, tt.wantErr)
			}
		})
	}
}

func TestEnum(t *testing.T) {
	val := Enum("sine", "square", "ramp")

	if err := val.Validate("sine"); err != nil {
		t.Errorf("Validate(sine) error = %v", err)
	}
	if err := val.Validate("triangle"); err == nil {
		t.Error("Validate(triangle) expected error")
	}

	// Numeric members accept every integral representation.
	nums := Enum(0, 1, 2, 3)
	if err := nums.Validate(int64(2)); err != nil {
		t.Errorf("Validate(int64(2)) error = %v", err)
	}
	if err := nums.Validate(2.0); err != nil {
		t.Errorf("Validate(2.0) error = %v", err)
	}
	if err := nums.Validate(4); err == nil {
		t.Error("Validate(4) expected error")
	}
}

func TestBoolsAndStrings(t *testing.T) {
	if err := Bools().Validate(true); err != nil {
		t.Errorf("Bools().Validate(true) error = %v", err)
	}
	if err := Bools().Validate(1); err == nil {
		t.Error("Bools().Validate(1) expected error")
	}
	if err := Strings(0, 0).Validate("x"); err != nil {
		t.Errorf("Strings(0, 0).Validate(x) error = %v", err)
	}
	if err := Strings(0, 0).Validate(3); err == nil {
		t.Error("Strings(0, 0).Validate(3) expected error")
	}
	if err := Strings(1, 8).Validate(""); err == nil {
		t.Error("Strings(1, 8).Validate(\"\") expected error")
	}
	if err := Strings(0, 3).Validate("abcd"); err == nil {
		t.Error("Strings(0, 3).Validate(abcd) expected error")
	}
}

func TestAnything(t *testing.T) {
	for _, v := range []any{nil, 1, "x", 3.14, true, []int{1}} {
		if err := Anything().Validate(v); err != nil {
			t.Errorf("Anything().Validate(%v) error = %v", v, err)
		}
	}
}

func TestMultiType(t *testing.T) {
	// A trigger count takes a bounded number or the keyword "inf".
	val := MultiType(Numbers(1, 1e4), Enum("inf"))

	if err := val.Validate(500); err != nil {
		t.Errorf("Validate(500) error = %v", err)
	}
	if err := val.Validate("inf"); err != nil {
		t.Errorf("Validate(inf) error = %v", err)
	}

	err := val.Validate("other")
	if err == nil {
		t.Fatal("Validate(other) expected error")
	}
	if !strings.Contains(err.Error(), "did not pass any constraint") {
		t.Errorf("error = %v, want combined constraint message", err)
	}

	if err := MultiType().Validate(1); err == nil {
		t.Error("empty MultiType must reject")
	}
}

func TestValidatorStrings(t *testing.T) {
	tests := []struct {
		val  Validator
		want string
	}{
		{Numbers(0, 1), "Numbers[0, 1]"},
		{Ints(1, 14), "Ints[1, 14]"},
		{Enum("a", "b"), "Enum[a, b]"},
		{Bools(), "Bools"},
		{Strings(2, 10), "Strings[2, 10]"},
		{Strings(0, 0), "Strings[0, inf]"},
		{Anything(), "Anything"},
	}
	for _, tt := range tests {
		got, ok := tt.val.(interface{ String() string })
		if !ok {
			t.Fatalf("%T has no String()", tt.val)
		}
		if got.String() != tt.want {
			t.Errorf("String() = %q, want %q", got.String(), tt.want)
		}
	}
}
