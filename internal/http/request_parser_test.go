package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"orti/internal/core"
)

func TestPathYear(t *testing.T) {
	tests := []struct {
		name    string
		year    string
		want    int
		wantErr func(error) bool
	}{
		{"valid", "2025", 2025, nil},
		{"not a number", "twenty", 0, isRequestError},
		{"before range", "1999", 0, core.IsValidation},
		{"after range", "2101", 0, core.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"year": tt.year})
			got, err := PathYear(r)
			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("PathYear(%q) error = %v", tt.year, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("PathYear(%q) = %d, %v; want %d", tt.year, got, err, tt.want)
			}
		})
	}
}

func TestQueryMonth(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr func(error) bool
	}{
		{"month=7", 7, nil},
		{"month=%2012%20", 12, nil},
		{"", 0, isRequestError},
		{"month=x", 0, isRequestError},
		{"month=0", 0, core.IsValidation},
		{"month=13", 0, core.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := QueryMonth(r, "month")
			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("QueryMonth error = %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("QueryMonth = %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestQueryViewAndAmount(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?view=projected&balance=1.500,25", nil)
	view, err := QueryView(r)
	if err != nil || view != core.ViewProjections {
		t.Errorf("QueryView = %v, %v", view, err)
	}
	amount, err := QueryAmount(r, "balance")
	if err != nil || !amount.Equal(decimal.RequireFromString("1500.25")) {
		t.Errorf("QueryAmount = %s, %v", amount, err)
	}

	amount, err = QueryAmount(httptest.NewRequest(http.MethodGet, "/", nil), "balance")
	if err != nil || !amount.IsZero() {
		t.Errorf("missing amount = %s, %v; want zero", amount, err)
	}

	if _, _, err := QueryUUID(httptest.NewRequest(http.MethodGet, "/?category=nope", nil), "category"); !isRequestError(err) {
		t.Errorf("QueryUUID bad value error = %v", err)
	}
	if _, ok, err := QueryUUID(httptest.NewRequest(http.MethodGet, "/", nil), "category"); ok || err != nil {
		t.Errorf("QueryUUID missing = %v, %v", ok, err)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name  string  `json:"name"`
		Value *Amount `json:"value"`
	}

	tests := []struct {
		name      string
		body      string
		wantValue string
		wantErr   func(error) bool
	}{
		{"number", `{"name":"a","value":12.5}`, "12.5", nil},
		{"italian string", `{"name":"a","value":"1.234,56"}`, "1234.56", nil},
		{"empty body", ``, "", isRequestError},
		{"unknown field", `{"name":"a","other":1}`, "", isRequestError},
		{"trailing data", `{"name":"a"} {"name":"b"}`, "", isRequestError},
		{"bad amount", `{"value":"abc"}`, "", core.IsValidation},
		{"null amount", `{"name":"a","value":null}`, "", nil},
		{"too large", `{"name":"` + strings.Repeat("x", 200) + `"}`, "", isRequestError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), r, &dst, 128)
			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("DecodeJSON error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if tt.wantValue == "" {
				if dst.Value != nil {
					t.Errorf("value = %v, want nil", dst.Value)
				}
				return
			}
			if dst.Value == nil || !dst.Value.Equal(decimal.RequireFromString(tt.wantValue)) {
				t.Errorf("value = %v, want %s", dst.Value, tt.wantValue)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Rooms  ", "Rooms"},
		{"a\x00b\x07c", "abc"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func isRequestError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}
