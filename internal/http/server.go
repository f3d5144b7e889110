package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"spendlog/internal/log"
	"spendlog/internal/middleware/ratelimit"
	"spendlog/internal/middleware/security"
	"spendlog/internal/middleware/trace"
	"spendlog/internal/ports"
	"spendlog/internal/services"
)

// readyTimeout bounds the store ping behind /readyz.
const readyTimeout = 2 * time.Second

// Deps are the services the API is built on.
type Deps struct {
	Users     *services.UserService
	Expenses  *services.ExpenseService
	Analytics *services.AnalyticsService
	Store     ports.Pinger
	Logger    *log.Logger
}

// Options tune the middleware chain.
type Options struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
}

// Server wraps http.Server with the spendlog JSON API.
type Server struct {
	http.Server
	users     *services.UserService
	expenses  *services.ExpenseService
	analytics *services.AnalyticsService
	store     ports.Pinger
	logger    *log.Logger

	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector(logger)
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		users:     deps.Users,
		expenses:  deps.Expenses,
		analytics: deps.Analytics,
		store:     deps.Store,
		logger:    logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	for _, p := range []string{"/users", "/users/{$}"} {
		mux.HandleFunc("POST "+p, s.handleCreateUser)
		mux.HandleFunc("GET "+p, s.handleListUsers)
	}
	mux.HandleFunc("POST /users/sync", s.handleSyncUser)
	mux.HandleFunc("GET /users/external/{external_id}", s.handleGetUserByExternalID)
	// Paths used by the Clerk web client.
	mux.HandleFunc("POST /users/sync-clerk-user", s.handleSyncUser)
	mux.HandleFunc("GET /users/clerk/{external_id}", s.handleGetUserByExternalID)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("DELETE /users/{id}", s.handleDeleteUser)
	mux.HandleFunc("PUT /users/{id}/allowance", s.handleUpdateAllowance)

	for _, p := range []string{"/expenses", "/expenses/{$}"} {
		mux.HandleFunc("POST "+p, s.handleCreateExpense)
		mux.HandleFunc("GET "+p, s.handleListExpenses)
	}
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /analytics/{user_id}", s.handleAnalytics)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not Found").Write(w)
	})

	s.Handler = s.chain(mux, opts)
	return s, nil
}

// chain wraps h, outermost first: trace, security headers, CORS, probe
// detection, write rate limiting.
func (s *Server) chain(h http.Handler, opts Options) http.Handler {
	h = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.WritesOnly, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
		)
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
	})(h)
	h = s.detector.Middleware(h)
	h = security.NewCORS(opts.CORSAllowedOrigins).Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.tracer.Middleware(h)
}

// Shutdown gracefully shuts down the server and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"message": "spendlog backend is running"}).Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				log.FieldError, err.Error(),
				log.FieldComponent, log.ComponentStorage,
			)
			ErrorResponse(http.StatusServiceUnavailable, "Store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}
