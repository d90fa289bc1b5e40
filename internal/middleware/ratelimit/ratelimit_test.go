package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, requests int, clock *time.Time) *Limiter {
	t.Helper()
	rl := NewLimiter(Config{Requests: requests, Window: time.Minute, CleanupInterval: time.Hour})
	rl.now = func() time.Time { return *clock }
	t.Cleanup(rl.Stop)
	return rl
}

func TestLimiter_Allow(t *testing.T) {
	clock := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 3, &clock)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("user-1") {
		t.Fatal("fourth request in the window should be rejected")
	}
	if !rl.Allow("user-2") {
		t.Fatal("other keys have their own budget")
	}

	// Continuous traffic must not keep extending the window.
	clock = clock.Add(30 * time.Second)
	if rl.Allow("user-1") {
		t.Fatal("still inside the first window")
	}
	clock = clock.Add(31 * time.Second)
	if !rl.Allow("user-1") {
		t.Fatal("window should have reset")
	}

	if got := rl.GetMetrics().TotalHits; got != 2 {
		t.Errorf("TotalHits = %d, want 2", got)
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	clock := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 1, &clock)

	rl.Allow("a")
	rl.Allow("b")
	clock = clock.Add(3 * time.Minute)
	rl.Allow("c")

	if removed := rl.cleanupStaleEntries(); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if got := rl.GetMetrics().ClientCount; got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	clock := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 1, &clock)

	handler := rl.Middleware(func(r *http.Request) string { return "k" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	clock = clock.Add(20 * time.Second)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "41" {
		t.Errorf("Retry-After = %q, want 41", got)
	}
}
