package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finsync/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)

	var seen string
	var scoped *log.Logger
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		scoped = log.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	if scoped == nil || scoped.Component() != log.ComponentTrace {
		t.Errorf("expected request-scoped logger in context")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMiddleware_HonoursCallerRequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "valid id", header: "abc-123", keep: true},
		{name: "invalid characters", header: "abc 123\n", keep: false},
		{name: "too long", header: strings.Repeat("a", 65), keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderRequestID, tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if tt.keep && got != tt.header {
				t.Errorf("request id = %q, want %q", got, tt.header)
			}
			if !tt.keep && got == tt.header {
				t.Errorf("invalid request id %q was echoed", tt.header)
			}
		})
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware(log.Discard(), func(r *http.Request) string { return "203.0.113.1" })
	ok := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	fail := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	fail.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", metrics.TotalRequests)
	}
	if metrics.ServerErrors != 1 {
		t.Errorf("ServerErrors = %d, want 1", metrics.ServerErrors)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.Flush()
	if !rec.Flushed {
		t.Error("Flush was not forwarded")
	}
}
