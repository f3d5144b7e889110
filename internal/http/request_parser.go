// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data:
// bounded JSON bodies, decimal fields that arrive as numbers or strings,
// path ids and the date window query parameters.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var (
	errEmptyBody   = errors.New("request body is required")
	errInvalidJSON = errors.New("request body must be a JSON object")
)

// decodeJSONBody reads a single JSON object from r into dst. Unknown
// fields are ignored.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest(errEmptyBody)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, err: err}
		}
		return badRequest(errInvalidJSON)
	}
	if dec.More() {
		return badRequest(errInvalidJSON)
	}
	return nil
}

// jsonDecimal accepts a decimal written as a JSON number or a string.
// Parsing is deferred so failures surface as field validation errors.
type jsonDecimal struct {
	raw     string
	present bool
}

func (d *jsonDecimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = jsonDecimal{}
		return nil
	}
	d.present = true
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		d.raw = s
		return nil
	}
	d.raw = string(b)
	return nil
}

func (d jsonDecimal) amount() (decimal.Decimal, error) {
	if !d.present {
		return decimal.Zero, core.ErrInvalidAmount
	}
	return core.ParseAmount(d.raw)
}

func (d jsonDecimal) allowance() (decimal.Decimal, error) {
	if !d.present {
		return decimal.Zero, core.ErrInvalidAllowance
	}
	return core.ParseAllowance(d.raw)
}

// optionalDate parses an optional YYYY-MM-DD body field; empty means unset.
func optionalDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// ParseDateRange reads date_from and date_to. Either may be absent. Bad
// values and inverted windows are client errors.
func ParseDateRange(query url.Values) (core.DateRange, error) {
	var r core.DateRange
	if v := strings.TrimSpace(query.Get("date_from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, badRequest(&core.ValidationError{Field: "date_from", Message: "must be a date in YYYY-MM-DD format"})
		}
		r.From = d
	}
	if v := strings.TrimSpace(query.Get("date_to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, badRequest(&core.ValidationError{Field: "date_to", Message: "must be a date in YYYY-MM-DD format"})
		}
		r.To = d
	}
	if err := r.Validate(); err != nil {
		return core.DateRange{}, badRequest(err)
	}
	return r, nil
}

// ParseInsightFlag reads the insight query parameter. It defaults to true.
func ParseInsightFlag(query url.Values) (bool, error) {
	v := strings.TrimSpace(query.Get("insight"))
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest(&core.ValidationError{Field: "insight", Message: "must be a boolean"})
	}
	return b, nil
}

// parseID converts a positive integer identifier named field.
func parseID(field, v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: field, Message: "must be a positive integer"}
	}
	return id, nil
}

// pathID reads a positive integer path wildcard.
func pathID(r *http.Request, name string) (int64, error) {
	return parseID(name, r.PathValue(name))
}

// queryUserID reads the required user_id query parameter.
func queryUserID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("user_id")
	if strings.TrimSpace(v) == "" {
		return 0, &core.ValidationError{Field: "user_id", Message: "is required"}
	}
	return parseID("user_id", v)
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}
