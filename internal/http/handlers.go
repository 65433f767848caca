package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady reports whether the state store answers and the state loaded
// cleanly.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	switch {
	case s.pinger == nil:
		checks["store"] = "ok"
	case ctx.Err() != nil:
		checks["store"] = "timeout"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.pinger.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	// A corrupt snapshot is served from defaults; it degrades, not fails.
	if err := s.svc.LoadNotice(); err != nil {
		checks["state"] = fmt.Sprintf("degraded: %v", err)
	} else {
		checks["state"] = "ok"
	}

	checks["cache"] = map[string]any{
		"entries": s.svc.Views().Size(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"revision":  s.svc.Revision(),
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	cacheHits, cacheMisses := s.svc.Views().Stats()
	m := s.appMetrics

	w.WriteHeader(http.StatusOK)

	// Prometheus-like format
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Total number of 5xx responses", traceMetrics.ServerErrors)
	metric("http_response_time_microseconds_avg", "gauge", "Average response time", traceMetrics.AverageResponseTime)

	metric("transactions_added_total", "counter", "Manual transactions added", atomic.LoadInt64(&m.transactionsAdded))
	metric("transactions_deleted_total", "counter", "Transactions deleted", atomic.LoadInt64(&m.transactionsDeleted))
	metric("imports_total", "counter", "Import batches processed", atomic.LoadInt64(&m.imports))

	fmt.Fprintf(w, "# HELP import_rows_total Import rows by outcome\n")
	fmt.Fprintf(w, "# TYPE import_rows_total counter\n")
	fmt.Fprintf(w, "import_rows_total{outcome=\"imported\"} %d\n", atomic.LoadInt64(&m.importedRows))
	fmt.Fprintf(w, "import_rows_total{outcome=\"duplicate\"} %d\n", atomic.LoadInt64(&m.duplicateRows))
	fmt.Fprintf(w, "import_rows_total{outcome=\"rejected\"} %d\n\n", atomic.LoadInt64(&m.rejectedRows))

	metric("state_save_failures_total", "counter", "Transitions applied but not persisted", atomic.LoadInt64(&m.saveFailures))
	metric("state_revision", "gauge", "Committed state revision", s.svc.Revision())

	metric("cache_hits_total", "counter", "Total view cache hits", cacheHits)
	metric("cache_misses_total", "counter", "Total view cache misses", cacheMisses)
	metric("cache_entries", "gauge", "Current view cache entries", s.svc.Views().Size())

	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("invalid_ip_attempts_total", "counter", "Forwarded client addresses that failed to parse", securityMetrics.InvalidIPAttempts)

	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(m.uptime).Seconds()))
}
