package metrics

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the edge layer.
type Metrics struct {
	// Response metrics
	ResponsesTotal   *prometheus.CounterVec
	ResponseDuration *prometheus.HistogramVec

	// Origin metrics
	OriginFetchDuration *prometheus.HistogramVec
	OriginErrorsTotal   *prometheus.CounterVec

	// Nonce / rewrite metrics
	NoncesIssuedTotal    prometheus.Counter
	NonceFailuresTotal   prometheus.Counter
	ScriptTagsRewritten  prometheus.Counter
	RewriteFailuresTotal *prometheus.CounterVec
	RewrittenBytesTotal  prometheus.Counter

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		ResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteedge_responses_total",
				Help: "Total number of decorated responses by content category and status class",
			},
			[]string{"category", "status"},
		),
		ResponseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteedge_response_duration_seconds",
				Help:    "Time from request receipt to the last body byte written",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"category"},
		),

		OriginFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteedge_origin_fetch_duration_seconds",
				Help:    "Duration of origin fetches until response headers are available",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"origin"},
		),
		OriginErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteedge_origin_errors_total",
				Help: "Total number of origin fetch failures",
			},
			[]string{"origin", "error_type"},
		),

		NoncesIssuedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "siteedge_nonces_issued_total",
				Help: "Total number of CSP nonces generated",
			},
		),
		NonceFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "siteedge_nonce_failures_total",
				Help: "Total number of requests failed because the random source failed",
			},
		),
		ScriptTagsRewritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "siteedge_script_tags_rewritten_total",
				Help: "Total number of script start tags that received a nonce attribute",
			},
		),
		RewriteFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteedge_rewrite_failures_total",
				Help: "Total number of HTML bodies whose rewrite stopped early",
			},
			[]string{"reason"},
		),
		RewrittenBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "siteedge_rewritten_bytes_total",
				Help: "Total number of HTML bytes written after nonce injection",
			},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteedge_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type"},
		),
	}
}

// ObserveResponse records one finished response.
func (m *Metrics) ObserveResponse(category string, status int, duration time.Duration) {
	m.ResponsesTotal.WithLabelValues(category, statusClass(status)).Inc()
	m.ResponseDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// ObserveOriginFetch records an origin fetch and classifies its error, if any.
func (m *Metrics) ObserveOriginFetch(origin string, duration time.Duration, err error) {
	m.OriginFetchDuration.WithLabelValues(origin).Observe(duration.Seconds())
	if err != nil {
		m.OriginErrorsTotal.WithLabelValues(origin, classifyError(err)).Inc()
	}
}

// ObserveNonce records a nonce generation attempt.
func (m *Metrics) ObserveNonce(err error) {
	if err != nil {
		m.NonceFailuresTotal.Inc()
		return
	}
	m.NoncesIssuedTotal.Inc()
}

// ObserveRewrite records the outcome of one HTML body rewrite.
func (m *Metrics) ObserveRewrite(scriptTags int, bytesWritten int64, err error) {
	m.ScriptTagsRewritten.Add(float64(scriptTags))
	m.RewrittenBytesTotal.Add(float64(bytesWritten))
	if err != nil {
		m.RewriteFailuresTotal.WithLabelValues(classifyError(err)).Inc()
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// statusClass collapses status codes into 2xx/3xx/4xx/5xx to bound label cardinality.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

func classifyError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit breaker is open"), strings.Contains(msg, "too many requests"):
		return "circuit_open"
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "context canceled"):
		return "canceled"
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "broken pipe"):
		return "client_gone"
	default:
		return "other"
	}
}
