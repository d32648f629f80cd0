package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/prysmi/siteedge/internal/config"
	apierrors "github.com/prysmi/siteedge/internal/errors"
	"github.com/prysmi/siteedge/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global rate limiting (across all clients)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-IP rate limiting
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default limits. A static site should never hit
// them during normal browsing; they exist to blunt scrapers and floods.
func DefaultConfig() Config {
	return Config{
		// Global: 5000 req/min
		GlobalEnabled: true,
		GlobalLimit:   5000,
		GlobalWindow:  1 * time.Minute,

		// Per-IP: 300 req/min, enough for a full page load with all assets
		PerIPEnabled: true,
		PerIPLimit:   300,
		PerIPWindow:  1 * time.Minute,
	}
}

// FromSettings converts application config into limiter config.
func FromSettings(cfg config.RateLimitConfig, m *metrics.Metrics) Config {
	return Config{
		GlobalEnabled: cfg.GlobalEnabled && cfg.GlobalLimit > 0,
		GlobalLimit:   cfg.GlobalLimit,
		GlobalWindow:  cfg.GlobalWindow.Duration,
		PerIPEnabled:  cfg.PerIPEnabled && cfg.PerIPLimit > 0,
		PerIPLimit:    cfg.PerIPLimit,
		PerIPWindow:   cfg.PerIPWindow.Duration,
		Metrics:       m,
	}
}

// createRateLimitHandler builds the 429 handler shared by all limiters.
func createRateLimitHandler(limitType string, window time.Duration, metricsCollector *metrics.Metrics) http.HandlerFunc {
	retryAfter := int(window.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	var message string
	switch limitType {
	case "global":
		message = "Global rate limit exceeded. Please try again later."
	case "per_ip":
		message = "IP rate limit exceeded. Please try again later."
	default:
		message = "Rate limit exceeded. Please try again later."
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType)
		}

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		apierrors.WriteError(w, r, apierrors.ErrCodeRateLimited, message, map[string]any{
			"limitType":         limitType,
			"retryAfterSeconds": retryAfter,
		})
	}
}

func passThrough(next http.Handler) http.Handler {
	return next
}

// GlobalLimiter creates a global rate limiter middleware.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return passThrough
	}

	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(createRateLimitHandler("global", cfg.GlobalWindow, cfg.Metrics)),
	)
}

// IPLimiter creates a per-IP rate limiter middleware.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return passThrough
	}

	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(createRateLimitHandler("per_ip", cfg.PerIPWindow, cfg.Metrics)),
	)
}
