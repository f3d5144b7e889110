package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-03-09" {
		t.Fatalf("round trip mismatch: %s", d)
	}
	for _, bad := range []string{"", "2025-13-01", "09/03/2025", "2025-3-9"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestDateOfDropsClock(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	d := DateOf(time.Date(2025, 6, 1, 23, 30, 0, 0, loc))
	if d.String() != "2025-06-01" {
		t.Fatalf("expected local calendar day, got %s", d)
	}
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Date Date `json:"date"`
	}
	if err := json.Unmarshal([]byte(`{"date":"2025-02-28"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Date.String() != "2025-02-28" {
		t.Fatalf("got %s", payload.Date)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"date":"2025-02-28"}` {
		t.Fatalf("got %s", out)
	}
	if err := json.Unmarshal([]byte(`{"date":null}`), &payload); err != nil || !payload.Date.IsEmpty() {
		t.Fatalf("null should decode to empty date, got %v %v", payload.Date, err)
	}
	if err := json.Unmarshal([]byte(`{"date":"soon"}`), &payload); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestDateRange(t *testing.T) {
	r := DateRange{From: NewDate(2025, 1, 10), To: NewDate(2025, 1, 20)}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid range, got %v", err)
	}
	if !r.Contains(NewDate(2025, 1, 10)) || !r.Contains(NewDate(2025, 1, 20)) {
		t.Fatalf("bounds must be inclusive")
	}
	if r.Contains(NewDate(2025, 1, 9)) || r.Contains(NewDate(2025, 1, 21)) {
		t.Fatalf("outside days must be excluded")
	}
	open := DateRange{To: NewDate(2025, 1, 1)}
	if !open.Contains(NewDate(1999, 1, 1)) {
		t.Fatalf("zero From must be open")
	}
	reversed := DateRange{From: NewDate(2025, 2, 1), To: NewDate(2025, 1, 1)}
	if !errors.Is(reversed.Validate(), ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Title:  "Lunch",
		Amount: decimal.RequireFromString("12.50"),
		Date:   NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Title: "", Date: NewDate(2025, 1, 1)},
		{Title: "   ", Date: NewDate(2025, 1, 1)},
		{Title: strings.Repeat("x", 201), Date: NewDate(2025, 1, 1)},
		{Title: "a", Category: strings.Repeat("c", 101), Date: NewDate(2025, 1, 1)},
		{Title: "a"}, // zero date
	}
	for i, e := range bads {
		err := e.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !IsValidation(err) {
			t.Fatalf("case %d expected validation error, got %T", i, err)
		}
	}
}

func TestUserValidate(t *testing.T) {
	good := User{Name: "Ada", Email: "ada@example.com", Allowance: decimal.NewFromInt(20)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.Allowance = decimal.NewFromInt(-1)
	if !errors.Is(bad.Validate(), ErrInvalidAllowance) {
		t.Fatalf("negative allowance must be rejected")
	}
	bad = good
	bad.Email = "not-an-email"
	if !errors.Is(bad.Validate(), ErrInvalidEmail) {
		t.Fatalf("bad email must be rejected")
	}
	bad = good
	bad.Name = " "
	if !errors.Is(bad.Validate(), ErrEmptyName) {
		t.Fatalf("empty name must be rejected")
	}
}

func TestNormalizeCategory(t *testing.T) {
	if NormalizeCategory("") != UncategorizedLabel || NormalizeCategory("  ") != UncategorizedLabel {
		t.Fatalf("empty category must normalize to %q", UncategorizedLabel)
	}
	if NormalizeCategory(" Food ") != "Food" {
		t.Fatalf("category must be trimmed")
	}
}
