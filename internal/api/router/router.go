package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medrecord-ai/internal/analysis"
	httpmiddleware "github.com/wolfman30/medrecord-ai/internal/http/middleware"
	"github.com/wolfman30/medrecord-ai/internal/records"
	"github.com/wolfman30/medrecord-ai/internal/session"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	AnalysisHandler    *analysis.Handler
	RecordsHandler     *records.Handler
	SuggestionsHandler *suggestions.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Session resolves the caller on /v1 routes. Nil leaves them unauthenticated, which
	// only the suggestions trigger accepts.
	SessionVerifier session.Verifier
	SessionCache    session.Cache

	// Health checks dependencies on GET /health. Optional.
	Health []HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.AnalysisHandler == nil || cfg.RecordsHandler == nil || cfg.SuggestionsHandler == nil {
		panic("router: analysis, records and suggestions handlers are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Health, logger))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/v1", func(api chi.Router) {
		api.Use(middleware.Compress(5))
		api.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		if cfg.SessionVerifier != nil {
			api.Use(session.Middleware(cfg.SessionVerifier, cfg.SessionCache, logger))
		} else {
			logger.Warn("session verification disabled; /v1 routes run without a caller identity")
		}

		api.Post("/analysis", cfg.AnalysisHandler.Analyze)

		api.Route("/records", func(rr chi.Router) {
			rr.Post("/", cfg.RecordsHandler.Create)
			rr.Post("/batch", cfg.RecordsHandler.CreateBatch)
			rr.Get("/", cfg.RecordsHandler.List)
			rr.Get("/{id}", cfg.RecordsHandler.Get)
		})

		api.Route("/suggestions", func(sr chi.Router) {
			sr.Post("/generate", cfg.SuggestionsHandler.Generate)
			sr.Get("/", cfg.SuggestionsHandler.List)
			sr.Post("/{id}/dismiss", cfg.SuggestionsHandler.Dismiss)
		})
	})

	return r
}
