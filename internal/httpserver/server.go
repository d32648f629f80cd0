package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prysmi/siteedge/internal/circuitbreaker"
	"github.com/prysmi/siteedge/internal/config"
	"github.com/prysmi/siteedge/internal/logger"
	"github.com/prysmi/siteedge/internal/metrics"
	"github.com/prysmi/siteedge/internal/ratelimit"
	"github.com/prysmi/siteedge/internal/secheaders"
)

var (
	serverStartTime = time.Now()
)

// Server owns the listening http.Server for a configured handler.
type Server struct {
	httpServer *http.Server
}

// Deps are the components the router serves.
type Deps struct {
	Edge     http.Handler            // transform handler, serves every site path
	Headers  *secheaders.Set         // static set for the edge's own endpoints
	Breakers *circuitbreaker.Manager // optional, reported by /edge-health
	Metrics  *metrics.Metrics        // optional
	Gatherer prometheus.Gatherer     // defaults to prometheus.DefaultGatherer
}

type handlers struct {
	cfg      *config.Config
	breakers *circuitbreaker.Manager
	logger   zerolog.Logger
}

// New builds the HTTP server around handler, usually a router prepared with
// ConfigureRouter.
func New(cfg *config.Config, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Address,
			ReadHeaderTimeout: cfg.Server.ReadTimeout.Duration,
			ReadTimeout:       cfg.Server.ReadTimeout.Duration,
			WriteTimeout:      cfg.Server.WriteTimeout.Duration,
			IdleTimeout:       cfg.Server.IdleTimeout.Duration,
			Handler:           handler,
		},
	}
}

// ConfigureRouter attaches edge routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Deps, appLogger zerolog.Logger) {
	if router == nil {
		return
	}

	handler := handlers{
		cfg:      cfg,
		breakers: deps.Breakers,
		logger:   appLogger,
	}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Add structured logging middleware (BEFORE RequestID for context propagation)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if cfg.Server.Compress {
		router.Use(middleware.Compress(5))
	}

	rateLimitCfg := ratelimit.FromSettings(cfg.RateLimit, deps.Metrics)
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Edge endpoints with a short timeout
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		if deps.Headers != nil {
			r.Use(securityHeadersMiddleware(deps.Headers))
		}
		r.Get("/edge-health", handler.health)
		// Protected by optional admin API key (SITEEDGE_ADMIN_METRICS_API_KEY env var)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	})

	// Everything else is the site, decorated on the way out
	if deps.Edge != nil {
		router.Group(func(r chi.Router) {
			if t := cfg.Server.WriteTimeout.Duration; t > 0 {
				r.Use(middleware.Timeout(t))
			}
			r.Handle("/*", deps.Edge)
		})
	}
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the handler the server was built with.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
