// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// path variables, query parameters and JSON bodies.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"orti/internal/core"
)

// RequestError is a malformed request: a value that could not be parsed at
// all, as opposed to a parsed value the domain rejects.
type RequestError struct {
	Field string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

var errMissing = errors.New("missing value")

// PathYear reads and validates the {year} route variable.
func PathYear(r *http.Request) (int, error) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		return 0, &RequestError{Field: "year", Err: err}
	}
	if err := core.ValidateYear(year); err != nil {
		return 0, err
	}
	return year, nil
}

// PathMonth reads and validates the {month} route variable.
func PathMonth(r *http.Request) (int, error) {
	month, err := strconv.Atoi(mux.Vars(r)["month"])
	if err != nil {
		return 0, &RequestError{Field: "month", Err: err}
	}
	if err := core.ValidateMonth(month); err != nil {
		return 0, err
	}
	return month, nil
}

// PathUUID reads the route variable name as an identifier.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, &RequestError{Field: name, Err: err}
	}
	return id, nil
}

// QueryView parses ?view=, defaulting to combined.
func QueryView(r *http.Request) (core.ViewMode, error) {
	return core.ParseViewMode(r.URL.Query().Get("view"))
}

// QueryMonth parses a required month query parameter.
func QueryMonth(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, &RequestError{Field: name, Err: errMissing}
	}
	month, err := strconv.Atoi(v)
	if err != nil {
		return 0, &RequestError{Field: name, Err: err}
	}
	if err := core.ValidateMonth(month); err != nil {
		return 0, err
	}
	return month, nil
}

// QueryAmount parses an optional amount query parameter; missing means zero.
func QueryAmount(r *http.Request, name string) (decimal.Decimal, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return decimal.Zero, nil
	}
	return core.ParseAmount(v)
}

// QueryUUID parses an optional identifier query parameter.
func QueryUUID(r *http.Request, name string) (uuid.UUID, bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false, &RequestError{Field: name, Err: err}
	}
	return id, true, nil
}

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields
// and bodies larger than maxBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &RequestError{Field: "body", Err: errMissing}
		case errors.As(err, &maxErr):
			return &RequestError{Field: "body", Err: fmt.Errorf("larger than %d bytes", maxErr.Limit)}
		case core.IsValidation(err):
			return err
		}
		return &RequestError{Field: "body", Err: err}
	}
	if dec.More() {
		return &RequestError{Field: "body", Err: errors.New("trailing data after JSON object")}
	}
	return nil
}

// Amount accepts a JSON number or a string in any form ParseAmount knows,
// such as "1.234,56". A JSON null leaves a *Amount field nil.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
