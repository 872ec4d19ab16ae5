package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{
		Component: ComponentApp,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}),
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_ComponentAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, slog.LevelInfo).WithComponent(ComponentSession).With(FieldYear, 2025)

	if logger.Component() != ComponentSession {
		t.Errorf("Component() = %q", logger.Component())
	}
	logger.Info("Session opened")
	logger.Debug("hidden")

	out := buf.String()
	for _, want := range []string{"component=session", "year=2025", `msg="Session opened"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	fallback := newBufferLogger(&buf, slog.LevelInfo)
	installed := fallback.WithComponent(ComponentTrace)

	ctx := context.WithValue(context.Background(), LoggerContextKey, installed)
	if got := FromContext(ctx, fallback); got != installed {
		t.Error("installed logger not returned")
	}
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("fallback not returned")
	}
	if got := FromContext(context.Background(), nil); got == nil || got.Component() != "unknown" {
		t.Errorf("default logger = %+v", got)
	}
}

func TestStructuredLogger_CellWritten(t *testing.T) {
	var buf bytes.Buffer
	NewStructuredLogger(newBufferLogger(&buf, slog.LevelInfo)).
		LogCellWritten(context.Background(), "sub-1", 3, "projected", "12.5")

	out := buf.String()
	for _, want := range []string{"row_id=sub-1", "month=3", "plane=projected", "value=12.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"json":   FormatJSON,
		" JSON ": FormatJSON,
		"text":   FormatText,
		"":       FormatText,
		"yaml":   FormatText,
	}
	for in, want := range tests {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogger_OneComponentPerRecord(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf, Component: ComponentTrace}).
		With(FieldRequestID, "req-1")

	sl := NewStructuredLogger(base)
	sl.LogHTTPEnd(context.Background(), httptest.NewRequest("GET", "/healthz", nil), 200, 3, "10.0.0.1")
	NewStructuredLogger(base.WithComponent(ComponentSession).ForYear("acme", 2025)).
		LogCellWritten(context.Background(), "sub-1", 3, "projected", "12.5")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records: %q", len(lines), buf.String())
	}
	for i, want := range []string{ComponentHTTP, ComponentSession} {
		if n := strings.Count(lines[i], `"component":`); n != 1 {
			t.Errorf("record %d has %d component keys: %s", i, n, lines[i])
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if rec["component"] != want {
			t.Errorf("record %d component = %v, want %s", i, rec["component"], want)
		}
		if n := strings.Count(lines[i], `"year":`); i == 1 && n != 1 {
			t.Errorf("record %d has %d year keys: %s", i, n, lines[i])
		}
		if rec["request_id"] != "req-1" {
			t.Errorf("record %d lost request_id: %s", i, lines[i])
		}
	}
}
