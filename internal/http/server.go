package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/budget"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/storage"
)

// TransactionService is implemented by ledger.Journal.
type TransactionService interface {
	Create(ctx context.Context, in ledger.NewTransaction) (string, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (core.Transaction, error)
	List(ctx context.Context, filter storage.TransactionFilter) ([]core.Transaction, error)
}

// AccountService is implemented by ledger.Accounts.
type AccountService interface {
	CreateAccount(ctx context.Context, in ledger.NewAccount) (core.Account, error)
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error)
	SetArchived(ctx context.Context, id string, archived bool) error
	DeleteAccount(ctx context.Context, id string) error
	CreateCategory(ctx context.Context, name string, typ core.CategoryType) (core.Category, error)
	GetCategory(ctx context.Context, id string) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
}

// BudgetService is implemented by budget.Service.
type BudgetService interface {
	Create(ctx context.Context, in budget.NewBudget) (core.Budget, error)
	Get(ctx context.Context, id string) (core.Budget, error)
	List(ctx context.Context, activeOnly bool) ([]core.Budget, error)
	Update(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error)
	Delete(ctx context.Context, id string) error
	Progress(ctx context.Context, id string) (budget.Progress, error)
	ProgressAll(ctx context.Context) ([]budget.Progress, error)
}

// BalanceChecker is implemented by ledger.Reconciler.
type BalanceChecker interface {
	Check(ctx context.Context, accountID string) (ledger.Drift, error)
}

// Services are the handlers' dependencies. Ready backs /readyz and may be
// nil.
type Services struct {
	Transactions TransactionService
	Accounts     AccountService
	Budgets      BudgetService
	Balances     BalanceChecker
	Ready        func(ctx context.Context) error
}

type Server struct {
	http.Server
	svc    Services
	logger *log.Logger
	now    func() time.Time

	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	idempotency  *idempotency
	caches       *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. Writes are rate limited per client IP; reads are not. POSTs
// carrying an Idempotency-Key replay their first successful response.
func NewServer(addr string, svc Services, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	ips := security.NewClientIPResolver()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		svc:     svc,
		logger:  logger,
		now:     time.Now,
		limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig(), logger),
		tracer:  trace.NewMiddleware(logger, ips.ClientIP),
		caches:  cache.NewManager(logger),
	}

	replies := cache.NewLRUCache[*idempotentResponse](idempotencyEntries, idempotencyTTL)
	s.caches.Register(replies)
	s.caches.StartCleanup(10 * time.Minute)
	s.idempotency = newIdempotency(replies)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.idempotency.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.limiter.Middleware(ips.ClientIP, isWrite, s.handleRateLimited)(h)
	h = log.Middleware(logger, trace.FromRequest)(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/v1/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/v1/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /api/v1/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("DELETE /api/v1/accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/archive", s.handleArchiveAccount(true))
	mux.HandleFunc("DELETE /api/v1/accounts/{id}/archive", s.handleArchiveAccount(false))
	mux.HandleFunc("GET /api/v1/accounts/{id}/balance-check", s.handleBalanceCheck)

	mux.HandleFunc("POST /api/v1/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/v1/categories", s.handleListCategories)
	mux.HandleFunc("GET /api/v1/categories/{id}", s.handleGetCategory)

	mux.HandleFunc("POST /api/v1/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/v1/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/v1/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PATCH /api/v1/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/v1/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /api/v1/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/v1/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/v1/budgets/progress", s.handleProgressAll)
	mux.HandleFunc("GET /api/v1/budgets/{id}", s.handleGetBudget)
	mux.HandleFunc("PATCH /api/v1/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/v1/budgets/{id}", s.handleDeleteBudget)
	mux.HandleFunc("GET /api/v1/budgets/{id}/progress", s.handleBudgetProgress)
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
		Error:     "rate limit exceeded, try again later",
		RequestID: trace.GetRequestID(r.Context()),
	})
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// TraceMetrics exposes request counters for diagnostics.
func (s *Server) TraceMetrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
