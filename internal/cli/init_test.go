package cli

import (
	"context"
	"log/slog"
	"testing"

	"orti/internal/store/memory"
)

func TestResolveCompany(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	created, err := ResolveCompany(ctx, st, "acme")
	if err != nil {
		t.Fatalf("ResolveCompany() error = %v", err)
	}
	if created.Code != "acme" {
		t.Errorf("Code = %q, want acme", created.Code)
	}

	again, err := ResolveCompany(ctx, st, "acme")
	if err != nil {
		t.Fatalf("ResolveCompany() second call error = %v", err)
	}
	if again.ID != created.ID {
		t.Errorf("second call created a new company: %s != %s", again.ID, created.ID)
	}

	if _, err := ResolveCompany(ctx, st, "  "); err == nil {
		t.Error("expected error for blank code")
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", "json")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
	logger = SetupLogger("bogus", "")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("unknown levels fall back to info")
	}
}
