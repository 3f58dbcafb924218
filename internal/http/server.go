package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"envelope/internal/log"
	"envelope/internal/metrics"
	"envelope/internal/middleware/ratelimit"
	"envelope/internal/middleware/security"
	"envelope/internal/middleware/trace"
	"envelope/internal/services"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the API server.
type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	RequestTimeout     time.Duration
	Logger             *log.Logger
	// Storage is checked by /readyz when set.
	Storage Pinger
}

// Server is the JSON API over one budget.
type Server struct {
	http.Server
	svc     *services.BudgetService
	storage Pinger
	logger  *log.Logger
	limiter *ratelimit.Limiter
	started time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.BudgetService, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.TrustedProxies == nil {
		opts.TrustedProxies = security.DefaultTrustedProxies
	}
	resolver, err := security.NewResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		svc:     svc,
		storage: opts.Storage,
		logger:  opts.Logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(trace.Middleware(s.logger, resolver.ClientIP))
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Use(s.limiter.Middleware(resolver.ClientIP, s.onRateLimit))

		r.Get("/budget", s.handleGetBudget)
		r.Put("/budget/settings", s.handlePutSettings)
		r.Post("/budget/verify", s.handleVerify)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Delete("/{id}", accountAction(svc.DeleteAccount))
			r.Post("/{id}/close", accountAction(svc.CloseAccount))
			r.Post("/{id}/reopen", accountAction(svc.ReopenAccount))
			r.Post("/{id}/reconcile", s.handleReconcile)
		})

		r.Route("/payees", func(r chi.Router) {
			r.Get("/", s.handleListPayees)
			r.Post("/", s.handleCreatePayee)
			r.Delete("/{id}", s.handleDeletePayee)
		})

		r.Route("/category-groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)
			r.Delete("/{id}", s.handleDeleteGroup)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Get("/{id}", s.handleGetCategory)
			r.Patch("/{id}", s.handlePatchCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
			r.Put("/{id}/goal", s.handlePutGoal)
			r.Delete("/{id}/goal", s.handleDeleteGoal)
		})

		r.Route("/months", func(r chi.Router) {
			r.Get("/", s.handleListMonths)
			r.Post("/", s.handleAdvanceMonth)
			r.Get("/{month}", s.handleMonthReport)
			r.Get("/{month}/dashboard", s.handleDashboard)
			r.Get("/{month}/register", s.handleRegister)
			r.Put("/{month}/note", s.handlePutMonthNote)
			r.Put("/{month}/categories/{id}", s.handleSetBudgeted)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Get("/{id}", s.handleGetTransaction)
			r.Put("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
			r.Post("/{id}/approve", s.handleApproveTransaction)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed here")
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded", log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later")
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK
	if s.storage != nil {
		if err := s.storage.Ping(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}
	if _, ok := s.svc.Budget().LatestMonth(); ok {
		checks["budget"] = "ok"
	} else {
		checks["budget"] = "no months yet"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
