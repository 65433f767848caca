package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"zenbudget/internal/log"
	"zenbudget/internal/middleware/ratelimit"
	"zenbudget/internal/middleware/security"
	"zenbudget/internal/middleware/trace"
	"zenbudget/internal/services"
)

const defaultCSVMaxBytes = 1 << 20

// Pinger reports whether the state store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to the budget service and its optional parts.
type Options struct {
	Service *services.BudgetService
	// Store is checked by /readyz when it implements Pinger.
	Store any
	// Gateway serves /api/gemini. Nil leaves the route unregistered.
	Gateway     http.Handler
	CSVMaxBytes int64
	RateLimit   ratelimit.Config
	Headers     security.HeadersConfig
	Logger      *log.Logger
}

type Server struct {
	http.Server
	svc         *services.BudgetService
	pinger      Pinger
	csvMaxBytes int64
	logger      *log.Logger
	events      *log.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// appMetrics counts budget operations served over HTTP.
type appMetrics struct {
	uptime              time.Time
	transactionsAdded   int64
	transactionsDeleted int64
	imports             int64
	importedRows        int64
	duplicateRows       int64
	rejectedRows        int64
	saveFailures        int64
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	if opts.CSVMaxBytes <= 0 {
		opts.CSVMaxBytes = defaultCSVMaxBytes
	}
	if opts.RateLimit.RequestsPerMinute == 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.Headers == (security.HeadersConfig{}) {
		opts.Headers = security.DefaultHeadersConfig()
	}

	detector := security.NewDetector()
	s := &Server{
		svc:              opts.Service,
		csvMaxBytes:      opts.CSVMaxBytes,
		logger:           logger,
		events:           log.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	if p, ok := opts.Store.(Pinger); ok {
		s.pinger = p
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleAddCategory)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /api/transactions/import", s.handleImport)
	mux.HandleFunc("POST /api/transactions/import/csv", s.handleImportCSV)

	mux.HandleFunc("GET /api/months/{month}/overview", s.handleMonthOverview)
	mux.HandleFunc("PUT /api/months/{month}/budgets/{category}", s.handleUpdateBudget)
	mux.HandleFunc("GET /api/months/{month}/insights", s.handleInsights)
	mux.HandleFunc("GET /api/trend", s.handleTrend)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/categorize", s.handleCategorize)

	mux.HandleFunc("POST /api/goals", s.handleAddGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleContribute)
	mux.HandleFunc("POST /api/reset", s.handleReset)

	if opts.Gateway != nil {
		mux.Handle("/api/gemini", log.ComponentMiddleware(log.ComponentGateway)(opts.Gateway))
	}

	headers := security.NewHeadersMiddleware(opts.Headers)
	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited)

	// Outermost first: logger, trace, request-scoped logger, detection,
	// headers, rate limiting.
	var handler http.Handler = mux
	handler = limited(handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (m *appMetrics) recordImport(imported, duplicates, rejected int) {
	atomic.AddInt64(&m.imports, 1)
	atomic.AddInt64(&m.importedRows, int64(imported))
	atomic.AddInt64(&m.duplicateRows, int64(duplicates))
	atomic.AddInt64(&m.rejectedRows, int64(rejected))
}
