// Package http exposes the sync, categorization and transaction-edit
// operations as a JSON API authenticated with bearer tokens.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finsync/internal/amqp"
	"finsync/internal/categorize"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/middleware/ratelimit"
	"finsync/internal/middleware/security"
	"finsync/internal/middleware/trace"
	"finsync/internal/services"
)

// Ports used by the handlers.
type (
	Syncer interface {
		SyncAccount(ctx context.Context, userID, accountID string, opts services.SyncOptions) (core.SyncOutcome, error)
		SyncAccountWithProgress(ctx context.Context, userID, accountID string, opts services.SyncOptions, onProgress services.ProgressFunc) (core.SyncOutcome, error)
		ListSyncRuns(ctx context.Context, userID, accountID string) ([]core.SyncRun, error)
	}

	Categorizer interface {
		SuggestCategories(ctx context.Context, userID string, req categorize.SuggestionRequest) ([]core.Category, error)
		ProvideCategoryFeedback(ctx context.Context, userID, transactionID, categoryID string) error
		BulkRecategorize(ctx context.Context, userID string, ids []string, categoryID string) (categorize.BulkResult, error)
		CreateRule(ctx context.Context, rule *core.CategorizationRule) error
	}

	TransactionEditor interface {
		UpdateTransaction(ctx context.Context, userID, id string, u services.TransactionUpdate) (*core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	AccountReader interface {
		GetActiveAccount(ctx context.Context, userID, accountID string) (*core.LinkedAccount, error)
	}

	SyncPublisher interface {
		PublishSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error
	}

	ReadinessChecker interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the services behind the API. Queue may be nil, in which case
// enqueueing answers 503.
type Deps struct {
	Sync         Syncer
	Categories   Categorizer
	Transactions TransactionEditor
	Accounts     AccountReader
	Queue        SyncPublisher
	Ready        ReadinessChecker
	Auth         *Authenticator
	Logger       *log.Logger
	RateLimit    ratelimit.Config
}

type Server struct {
	http.Server
	deps        Deps
	logger      *log.Logger
	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter
	ips         *security.IPResolver

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := log.Or(deps.Logger, log.ComponentHTTP)
	s := &Server{
		deps:        deps,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(deps.RateLimit),
		ips:         security.NewIPResolver(),
	}
	s.tracer = trace.NewMiddleware(logger.WithComponent(log.ComponentTrace), s.ips.ClientIP)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/accounts/{id}/sync", s.handleSync)
	api.HandleFunc("GET /api/accounts/{id}/sync/stream", s.handleSyncStream)
	api.HandleFunc("POST /api/accounts/{id}/sync/enqueue", s.handleEnqueueSync)
	api.HandleFunc("GET /api/accounts/{id}/sync-runs", s.handleSyncRuns)
	api.HandleFunc("POST /api/categories/suggest", s.handleSuggestCategories)
	api.HandleFunc("PUT /api/transactions/{id}/category", s.handleCategoryFeedback)
	api.HandleFunc("POST /api/transactions/bulk-category", s.handleBulkRecategorize)
	api.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("POST /api/rules", s.handleCreateRule)

	limited := s.rateLimiter.Middleware(
		func(r *http.Request) string { return "user:" + UserID(r.Context()) },
		func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldUserID, UserID(r.Context()))
			NewJSONResponse().Status(http.StatusTooManyRequests).
				Body(errorBody{Code: "RATE_LIMITED", Message: "too many requests, try again later"}).Write(w)
		},
	)(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	if deps.Auth != nil {
		root.Handle("/api/", deps.Auth.Middleware(limited))
	} else {
		root.Handle("/api/", limited)
	}

	s.Addr = addr
	s.Handler = security.Headers(security.DefaultHeadersConfig())(s.tracer.Middleware(root))
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 2 * time.Minute
	s.IdleTimeout = 60 * time.Second
	s.MaxHeaderBytes = 1 << 16
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes the request counters of the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			NewJSONResponse().Status(http.StatusServiceUnavailable).
				Body(map[string]string{"status": "unavailable"}).Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
