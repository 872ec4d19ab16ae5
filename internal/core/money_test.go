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
		{"0", "0", true},
		{"-12,345", "-12.35", true}, // half away from zero
		{"+7.5", "7.5", true},
		{" 2.50 ", "2.5", true},
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"€ 10", "10", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,2,3", "", false},
		{"", "", false},
		{"-", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"100", "100", true},
		{"100", "100.009", true},
		{"100", "100.01", false},
		{"-5", "5", false},
	}
	for _, tc := range cases {
		got := WithinTolerance(decimal.RequireFromString(tc.a), decimal.RequireFromString(tc.b))
		if got != tc.want {
			t.Errorf("WithinTolerance(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFormatEuros(t *testing.T) {
	cases := map[string]string{
		"0":        "€0,00",
		"12.3":     "€12,30",
		"1234.56":  "€1.234,56",
		"-1234567": "-€1.234.567,00",
	}
	for in, want := range cases {
		if got := FormatEuros(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatEuros(%s) = %q, want %q", in, got, want)
		}
	}
}
