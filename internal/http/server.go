package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"orti/internal/log"
	"orti/internal/middleware/ratelimit"
	"orti/internal/middleware/security"
	"orti/internal/middleware/trace"
	"orti/internal/services"
)

// ServerConfig holds the HTTP tunables.
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ReadyTimeout bounds the readiness probe (default: 5s)
	ReadyTimeout time.Duration

	// ReorderWaitTimeout bounds a reorder request that asked to wait for persistence (default: 15s)
	ReorderWaitTimeout time.Duration

	// MaxBodyBytes caps JSON request bodies (default: 64KiB)
	MaxBodyBytes int64

	RateLimit ratelimit.Config

	// Now is the clock that picks the current year (default: time.Now)
	Now func() time.Time
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		ReadyTimeout:       5 * time.Second,
		ReorderWaitTimeout: 15 * time.Second,
		MaxBodyBytes:       64 << 10,
		RateLimit:          ratelimit.DefaultConfig(),
		Now:                time.Now,
	}
}

func (c ServerConfig) withDefaults() ServerConfig {
	def := DefaultServerConfig()
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = def.ReadyTimeout
	}
	if c.ReorderWaitTimeout <= 0 {
		c.ReorderWaitTimeout = def.ReorderWaitTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}

// Server serves the JSON API of one company over a session registry.
type Server struct {
	http.Server
	registry *services.Registry
	router   *mux.Router
	cfg      ServerConfig
	logger   *log.Logger
	started  time.Time

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, registry *services.Registry, cfg ServerConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	cfg = cfg.withDefaults()

	s := &Server{
		registry:    registry,
		router:      mux.NewRouter(),
		cfg:         cfg,
		logger:      logger.WithComponent(log.ComponentHTTP),
		started:     time.Now(),
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		detector:    security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	s.routes()

	// Outermost first: every request is traced, including rejected ones.
	var handler http.Handler = s.router
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.URL.Path).Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)
	api.HandleFunc("/categories/{id}/subcategories", s.handleCreateSubcategory).Methods(http.MethodPost)
	api.HandleFunc("/subcategories/{id}", s.handleDeleteSubcategory).Methods(http.MethodDelete)

	year := api.PathPrefix("/years/{year:[0-9]+}").Subrouter()
	year.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	year.HandleFunc("/cells/{id}", s.handleCell).Methods(http.MethodGet)
	year.HandleFunc("/totals", s.handleTotals).Methods(http.MethodGet)
	year.HandleFunc("/statuses", s.handleStatuses).Methods(http.MethodGet)
	year.HandleFunc("/months/{month:[0-9]+}/status", s.handleMonthStatus).Methods(http.MethodGet)
	year.HandleFunc("/months/{month:[0-9]+}/consolidation", s.handleConsolidate).Methods(http.MethodPost)
	year.HandleFunc("/months/{month:[0-9]+}/consolidation", s.handleRevertConsolidation).Methods(http.MethodDelete)
	year.HandleFunc("/categories/{id}/validation", s.handleValidation).Methods(http.MethodGet)
	year.HandleFunc("/validation", s.handleYearValidation).Methods(http.MethodGet)
	year.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	year.HandleFunc("/variance", s.handleVariance).Methods(http.MethodGet)
	year.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	year.HandleFunc("/reorder", s.handleReorder).Methods(http.MethodPost)
	year.HandleFunc("/reorder/{id}", s.handleReorderStatus).Methods(http.MethodGet)
	year.HandleFunc("/entries", s.handleSaveEntry).Methods(http.MethodPut)
	year.HandleFunc("/subcategories/{id}/clear", s.handleClearSubcategory).Methods(http.MethodPost)
}

// Router exposes the route table for tests and route listings.
func (s *Server) Router() *mux.Router { return s.router }

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requestLogger returns the per-request logger installed by the trace middleware.
func (s *Server) requestLogger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx, s.logger).WithComponent(log.ComponentHTTP)
}

// writeError logs err at the severity its kind deserves and writes the
// mapped response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := ClassifyError(err)
	logger := s.requestLogger(r.Context())
	args := []any{
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldStatusCode, status,
		log.FieldError, err,
	}
	switch kind {
	case ErrorKindInternal, ErrorKindPersistence:
		logger.ErrorContext(r.Context(), "Request failed", args...)
	default:
		logger.InfoContext(r.Context(), "Request rejected", args...)
	}
	ErrorFromErr(err).Write(w)
}

// session resolves the {year} route variable to its open session.
func (s *Server) session(r *http.Request) (*services.Session, error) {
	year, err := PathYear(r)
	if err != nil {
		return nil, err
	}
	return s.registry.Session(r.Context(), year)
}

// currentSession is used by structure changes, which are not bound to a year.
func (s *Server) currentSession(ctx context.Context) (*services.Session, error) {
	return s.registry.Session(ctx, s.cfg.Now().Year())
}

// refreshOthers reloads the open sessions after a structure change made
// through one of them.
func (s *Server) refreshOthers(ctx context.Context, done *services.Session) {
	for _, year := range s.registry.Years() {
		if year == done.Year() {
			continue
		}
		if err := s.registry.Refresh(ctx, year); err != nil {
			s.requestLogger(ctx).WarnContext(ctx, "Failed to refresh session after structure change",
				log.FieldYear, year,
				log.FieldError, err)
		}
	}
}
