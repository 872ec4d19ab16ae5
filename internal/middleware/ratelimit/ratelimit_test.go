package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("fourth request in the window should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other clients are counted separately")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Error("a new window should reset the count")
	}

	m := rl.GetMetrics()
	if m.TotalHits != 1 || m.ClientCount != 2 {
		t.Errorf("metrics = %+v, want 1 hit and 2 clients", m)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 10)
	rl.Allow("1.2.3.4")
	*now = now.Add(5 * time.Minute)
	rl.Allow("5.6.7.8")
	*now = now.Add(6 * time.Minute)

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients() = %d, want 1", got)
	}
}

func TestLimiter_MiddlewareOnlyCountsMutations(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(
		func(*http.Request) string { return "9.9.9.9" },
		MutatingOnly,
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusNoContent},
		{http.MethodPut, http.StatusNoContent},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodPost, http.StatusTooManyRequests},
		{http.MethodDelete, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tt.method, "/api/x", nil))
		if rr.Code != tt.want {
			t.Errorf("%s status = %d, want %d", tt.method, rr.Code, tt.want)
		}
		if tt.want == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q, want 60", rr.Header().Get("Retry-After"))
		}
	}
}
