package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "1.2.3.4" })
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if !strings.HasPrefix(seen, "req_") || rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("generated id = %q, header = %q", seen, rec.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set(HeaderRequestID, "edge-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "edge-42" {
		t.Fatalf("incoming id not kept: %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set(HeaderRequestID, "bad id\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id\n" {
		t.Fatal("invalid incoming id accepted")
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 3 || metrics.ServerErrors != 3 {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetRequestID(r.Context()); id != "" {
		t.Fatalf("GetRequestID() = %q", id)
	}
}
