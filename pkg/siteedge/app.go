// Package siteedge assembles the edge for standalone serving or embedding.
package siteedge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/prysmi/siteedge/internal/circuitbreaker"
	"github.com/prysmi/siteedge/internal/config"
	"github.com/prysmi/siteedge/internal/csp"
	"github.com/prysmi/siteedge/internal/httpserver"
	"github.com/prysmi/siteedge/internal/lifecycle"
	"github.com/prysmi/siteedge/internal/metrics"
	"github.com/prysmi/siteedge/internal/nonce"
	"github.com/prysmi/siteedge/internal/origin"
	"github.com/prysmi/siteedge/internal/secheaders"
	"github.com/prysmi/siteedge/internal/transform"
)

// App wires the origin, header set, CSP policy and router.
type App struct {
	Config   *config.Config
	Origin   origin.Fetcher
	Headers  *secheaders.Set
	Policy   csp.Policy
	Pipeline *transform.Pipeline
	Breakers *circuitbreaker.Manager
	Metrics  *metrics.Metrics

	router          chi.Router
	resourceManager *lifecycle.Manager
}

// Option configures App construction.
type Option func(*options)

type options struct {
	fetcher  origin.Fetcher
	router   chi.Router
	registry *prometheus.Registry
	logger   *zerolog.Logger
}

// WithFetcher replaces the origin selected by cfg.Origin.
func WithFetcher(f origin.Fetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithRouter allows callers to provide an existing chi.Router to register routes onto.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// WithRegistry registers metrics on registry instead of the default one.
// /metrics then serves that registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithLogger sets the application logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

// NewApp assembles the edge.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("siteedge: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	var appLogger zerolog.Logger
	if optState.logger != nil {
		appLogger = *optState.logger
	} else {
		appLogger = zerolog.Nop()
	}

	app := &App{
		Config:          cfg,
		resourceManager: lifecycle.NewManager(appLogger),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if optState.registry != nil {
		registerer = optState.registry
		gatherer = optState.registry
	}
	app.Metrics = metrics.New(registerer)

	app.Breakers = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker, appLogger)

	fetcher := optState.fetcher
	if fetcher == nil {
		var err error
		fetcher, err = origin.New(cfg.Origin, app.Breakers)
		if err != nil {
			return nil, fmt.Errorf("init origin: %w", err)
		}
	}
	app.Origin = origin.Instrument(fetcher, cfg.Origin.Mode, app.Metrics)

	app.Policy = cfg.CSP.Policy()
	if err := app.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("init csp: %w", err)
	}
	app.Headers = secheaders.New(cfg.Headers, cfg.Cache)

	pipeline, err := transform.NewPipeline(transform.Deps{
		Origin:  app.Origin,
		Headers: app.Headers,
		Policy:  app.Policy,
		Nonces:  nonce.New(cfg.CSP.NonceBytes),
		Metrics: app.Metrics,
	})
	if err != nil {
		return nil, err
	}
	app.Pipeline = pipeline

	if optState.router != nil {
		app.router = optState.router
	} else {
		app.router = chi.NewRouter()
	}

	httpserver.ConfigureRouter(app.router, cfg, httpserver.Deps{
		Edge:     transform.NewHandler(pipeline),
		Headers:  app.Headers,
		Breakers: app.Breakers,
		Metrics:  app.Metrics,
		Gatherer: gatherer,
	}, appLogger)

	if closer, ok := fetcher.(interface{ Close() error }); ok {
		app.resourceManager.Register("origin", closer)
	}

	appLogger.Info().
		Str("origin_mode", cfg.Origin.Mode).
		Str("csp_header", app.Policy.HeaderName()).
		Bool("breaker_enabled", cfg.CircuitBreaker.Enabled).
		Msg("siteedge.app_ready")

	return app, nil
}

// Router returns the chi router with edge routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// RegisterCloser ties an external resource to the app's lifetime.
func (a *App) RegisterCloser(name string, fn func() error) {
	a.resourceManager.RegisterFunc(name, fn)
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// NewHandler is a convenience that constructs an App and returns its handler.
func NewHandler(cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the edge.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
