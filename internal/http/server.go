// Package http exposes the allocation and ledger engine as a JSON API. The
// caller's identity arrives in the X-User-ID header from an upstream proxy;
// this layer never authenticates.
package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"nestegg/internal/cache"
	"nestegg/internal/log"
	"nestegg/internal/middleware/ratelimit"
	"nestegg/internal/middleware/security"
	"nestegg/internal/middleware/trace"
	"nestegg/internal/services"
	"nestegg/internal/storage"
)

type Server struct {
	http.Server

	allocations *services.AllocationService
	transfers   *services.TransferService
	scheduler   *services.SchedulerService
	aggregator  *services.Aggregator
	repo        *storage.SQLiteRepository

	// read-side caches for the dashboard views; invalidated per user on
	// every write
	usageCache   *cache.LRUCache[[]services.BudgetUsageLine]
	reserveCache *cache.LRUCache[services.ReserveProgress]
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
	slogger      *log.StructuredLogger

	shutdownOnce sync.Once
}

// Services bundles the engine services the API exposes.
type Services struct {
	Allocations *services.AllocationService
	Transfers   *services.TransferService
	Scheduler   *services.SchedulerService
	Aggregator  *services.Aggregator
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(addr string, svc Services, repo *storage.SQLiteRepository, cacheTTL time.Duration) *Server {
	s := &Server{
		allocations:  svc.Allocations,
		transfers:    svc.Transfers,
		scheduler:    svc.Scheduler,
		aggregator:   svc.Aggregator,
		repo:         repo,
		usageCache:   cache.NewLRUCache[[]services.BudgetUsageLine](200, cacheTTL),
		reserveCache: cache.NewLRUCache[services.ReserveProgress](200, cacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.usageCache)
	s.cacheManager.Register(s.reserveCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.slogger = log.NewStructuredLogger(log.Default())
	tracer := trace.NewMiddleware(clientIP, s.slogger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())

	r := chi.NewRouter()
	r.Use(headers.Middleware)
	r.Use(tracer.Middleware)
	r.Use(log.Middleware(log.Default()))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	}))
	r.Use(s.limiter.Middleware(limitKey, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "60")
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(identityMiddleware)

		r.Post("/incomes", s.handleCommitIncome)
		r.Get("/incomes", s.handleListIncomes)
		r.Delete("/incomes/{incomeID}", s.handleDeleteIncome)

		r.Get("/settings/allocation", s.handleGetSettings)
		r.Put("/settings/allocation", s.handleUpdateSettings)

		r.Post("/transfers", s.handleTransfer)

		r.Get("/reserve", s.handleReserveProgress)
		r.Put("/reserve/target", s.handleSetReserveTarget)

		r.Post("/goals", s.handleCreateGoal)
		r.Get("/goals", s.handleListGoals)
		r.Delete("/goals/{goalID}", s.handleArchiveGoal)

		r.Post("/plans", s.handleCreatePlan)
		r.Get("/plans", s.handleListPlans)
		r.Post("/plans/{planID}/payments", s.handlePayInstallment)

		r.Post("/recurring", s.handleCreateRecurring)
		r.Get("/recurring", s.handleListRecurring)
		r.Post("/recurring/{expenseID}/payments", s.handlePayRecurring)
		r.Post("/recurring/{expenseID}/toggle", s.handleToggleRecurring)

		r.Get("/commitments", s.handleCommitments)

		r.Post("/categories", s.handleCreateCategory)
		r.Get("/categories", s.handleListCategories)
		r.Delete("/categories/{categoryID}", s.handleDeleteCategory)

		r.Put("/budgets", s.handleUpsertBudget)
		r.Get("/budgets/usage", s.handleBudgetUsage)

		r.Get("/ledger", s.handleListEntries)
	})

	s.Server = http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Shutdown stops the cache janitor, then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// limitKey buckets rate limiting by user when the identity header is
// present, else by client address.
func limitKey(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return "user:" + id
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func userCachePrefix(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":"
}

func (s *Server) usageKey(userID int64, year, month int) string {
	return userCachePrefix(userID) + "usage:" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

func (s *Server) reserveKey(userID int64) string {
	return userCachePrefix(userID) + "reserve"
}

// invalidateUser drops every cached view for the user. Called after each
// write so dashboards never serve balances older than the cache TTL.
func (s *Server) invalidateUser(userID int64) {
	prefix := userCachePrefix(userID)
	s.usageCache.DeletePrefix(prefix)
	s.reserveCache.DeletePrefix(prefix)
}
