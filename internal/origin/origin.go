// Package origin resolves requests against the static asset origin that sits
// behind the edge.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prysmi/siteedge/internal/circuitbreaker"
	"github.com/prysmi/siteedge/internal/config"
	"github.com/prysmi/siteedge/internal/metrics"
)

// ErrCircuitOpen is returned while the origin circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("origin: circuit breaker open")

// Response is the undecorated origin response. The caller owns Body and must
// close it.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Fetcher resolves a request to an origin response. An error means the origin
// could not be reached; a 404 or 500 from the origin is a Response.
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, r *http.Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	return f(ctx, r)
}

type instrumented struct {
	next    Fetcher
	name    string
	metrics *metrics.Metrics
}

// Instrument records fetch duration and failures for next under name.
func Instrument(next Fetcher, name string, m *metrics.Metrics) Fetcher {
	if m == nil {
		return next
	}
	return &instrumented{next: next, name: name, metrics: m}
}

func (i *instrumented) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := i.next.Fetch(ctx, r)
	i.metrics.ObserveOriginFetch(i.name, time.Since(start), err)
	return resp, err
}

// New builds the fetcher selected by cfg.Mode.
func New(cfg config.OriginConfig, breakers *circuitbreaker.Manager) (Fetcher, error) {
	switch cfg.Mode {
	case "dir":
		return NewDirFetcher(cfg.Dir, cfg.IndexFile), nil
	case "http":
		return NewHTTPFetcher(cfg.URL, cfg.Timeout.Duration, breakers)
	default:
		return nil, fmt.Errorf("unknown origin mode %q", cfg.Mode)
	}
}
