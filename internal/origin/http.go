package origin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prysmi/siteedge/internal/circuitbreaker"
	"github.com/prysmi/siteedge/internal/httputil"
	"github.com/prysmi/siteedge/internal/logger"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// HTTPFetcher forwards requests to an upstream static host. Calls run through
// the origin circuit breaker and are never retried.
type HTTPFetcher struct {
	base     *url.URL
	client   *http.Client
	breakers *circuitbreaker.Manager
}

// NewHTTPFetcher creates a fetcher for baseURL. A nil breakers manager
// disables circuit breaking.
func NewHTTPFetcher(baseURL string, timeout time.Duration, breakers *circuitbreaker.Manager) (*HTTPFetcher, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("origin url %q: scheme must be http or https", baseURL)
	}
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.Config{Enabled: false}, zerolog.Nop())
	}
	return &HTTPFetcher{
		base:     base,
		client:   httputil.NewClient(timeout),
		breakers: breakers,
	}, nil
}

// Fetch sends r to the upstream and returns its response with the body still
// streaming.
func (f *HTTPFetcher) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	out, err := f.outboundRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	result, err := f.breakers.Execute(circuitbreaker.ServiceOrigin, func() (interface{}, error) {
		return f.client.Do(out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("origin", f.base.Host).
			Str("path", r.URL.Path).
			Msg("origin.fetch_failed")
		return nil, fmt.Errorf("fetch %s: %w", out.URL.Path, err)
	}

	resp := result.(*http.Response)
	header := resp.Header.Clone()
	httputil.RemoveHopHeaders(header)
	if resp.Uncompressed {
		// The transport decoded the body, so the upstream encoding no longer applies.
		header.Del("Content-Encoding")
		header.Del("Content-Length")
	}

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   resp.Body,
	}, nil
}

func (f *HTTPFetcher) outboundRequest(ctx context.Context, r *http.Request) (*http.Request, error) {
	target := *f.base
	target.Path = f.base.Path + r.URL.Path
	target.RawPath = ""
	if r.URL.RawPath != "" {
		target.RawPath = f.base.EscapedPath() + r.URL.RawPath
	}
	target.RawQuery = r.URL.RawQuery

	var body = r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}

	out.Header = r.Header.Clone()
	httputil.RemoveHopHeaders(out.Header)
	// Let the transport negotiate gzip and decode it, so HTML reaches the
	// rewriter as plain bytes.
	out.Header.Del("Accept-Encoding")
	out.ContentLength = r.ContentLength

	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	if clientIP != "" {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		out.Header.Set("X-Forwarded-For", clientIP)
	}
	out.Header.Set("X-Forwarded-Host", r.Host)
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	out.Header.Set("X-Forwarded-Proto", proto)

	return out, nil
}
