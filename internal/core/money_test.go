package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.005", true}, // no rounding
		{" 2.50 ", "2.5", true},
		{"-1", "-1", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "1000", true},
		{"1E2", "100", true},
		{"2.5e-1", "0.25", true},
		{"1e400", "", false},
		{"1e-40", "", false},
		{"1e", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseAllowance(t *testing.T) {
	if _, err := ParseAllowance("20"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if _, err := ParseAllowance("0"); err != nil {
		t.Fatalf("zero allowance should be accepted, got %v", err)
	}
	if _, err := ParseAllowance("-1"); err != ErrInvalidAllowance {
		t.Fatalf("expected ErrInvalidAllowance, got %v", err)
	}
	if _, err := ParseAllowance("x"); err != ErrInvalidAllowance {
		t.Fatalf("expected ErrInvalidAllowance, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("10")); got != "10.00" {
		t.Fatalf("got %q", got)
	}
	if got := FormatAmount(decimal.RequireFromString("-3.5")); got != "-3.50" {
		t.Fatalf("got %q", got)
	}
}
