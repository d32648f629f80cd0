// Package transform decorates origin responses on their way to the client:
// static security headers on everything, and for HTML a per-response CSP
// nonce carried both in the policy header and on every script tag.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prysmi/siteedge/internal/csp"
	"github.com/prysmi/siteedge/internal/metrics"
	"github.com/prysmi/siteedge/internal/nonce"
	"github.com/prysmi/siteedge/internal/origin"
	"github.com/prysmi/siteedge/internal/rewrite"
	"github.com/prysmi/siteedge/internal/secheaders"
)

var (
	// ErrUpstreamUnavailable wraps every origin fetch failure.
	ErrUpstreamUnavailable = errors.New("transform: upstream unavailable")
	// ErrEncodedHTML is returned when the origin sends HTML with a content
	// encoding the edge cannot rewrite through.
	ErrEncodedHTML = errors.New("transform: html body is content-encoded")
	// ErrHeaderPolicy is returned when the static header set cannot be applied.
	ErrHeaderPolicy = errors.New("transform: security headers")
)

// htmlNoStore is used for HTML unless a cache rule says otherwise: a shared
// cache replaying the page would replay its nonce.
const htmlNoStore = "private, no-store"

// partialHeaders let an origin answer with a byte range, a 304 or a 412.
// A rewritten body only exists whole, so the origin never sees them.
var partialHeaders = []string{
	"Range",
	"If-Range",
	"If-Modified-Since",
	"If-None-Match",
	"If-Match",
	"If-Unmodified-Since",
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Origin  origin.Fetcher
	Headers *secheaders.Set
	Policy  csp.Policy
	Nonces  *nonce.Generator
	Metrics *metrics.Metrics // optional
}

// Pipeline is stateless between requests and safe for concurrent use.
type Pipeline struct {
	origin  origin.Fetcher
	headers *secheaders.Set
	policy  csp.Policy
	nonces  *nonce.Generator
	metrics *metrics.Metrics
}

// NewPipeline validates d and returns a Pipeline.
func NewPipeline(d Deps) (*Pipeline, error) {
	if d.Origin == nil {
		return nil, errors.New("transform: origin fetcher is required")
	}
	if d.Headers == nil {
		return nil, errors.New("transform: header set is required")
	}
	if err := d.Policy.Validate(); err != nil {
		return nil, err
	}
	nonces := d.Nonces
	if nonces == nil {
		nonces = nonce.New(nonce.DefaultSize)
	}
	return &Pipeline{
		origin:  d.Origin,
		headers: d.Headers,
		policy:  d.Policy,
		nonces:  nonces,
		metrics: d.Metrics,
	}, nil
}

// Response is a decorated origin response. Its body is rewritten while it is
// written, so headers can be sent before the body is read.
type Response struct {
	Status   int
	Header   http.Header
	Category Category
	// Nonce is the value in the CSP header and on every script tag.
	// It is empty for CategoryOther.
	Nonce string

	body    io.ReadCloser
	metrics *metrics.Metrics
	closed  bool
}

// Decorate fetches the origin response for r and applies, in order: the
// static header set and cache rules, then for HTML a fresh nonce and its
// CSP header. Origin failures are fatal and not retried.
func (p *Pipeline) Decorate(ctx context.Context, r *http.Request) (*Response, error) {
	resp, err := p.origin.Fetch(ctx, fullRequest(ctx, r))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	out := &Response{
		Status:   resp.Status,
		Header:   resp.Header,
		Category: Classify(resp.Header.Get("Content-Type")),
		body:     &contextReader{ctx: ctx, rc: resp.Body},
		metrics:  p.metrics,
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}

	if err := p.headers.Apply(out.Header, r); err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: %w", ErrHeaderPolicy, err)
	}
	cacheRuleMatched := p.headers.ApplyCache(out.Header, r.URL.Path)

	if out.Category != CategoryHTML {
		dropNonceBearingPolicy(out.Header)
		return out, nil
	}

	if enc := out.Header.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		out.Close()
		return nil, fmt.Errorf("%w: %w (%s)", ErrUpstreamUnavailable, ErrEncodedHTML, enc)
	}

	n, err := p.nonces.Generate()
	if p.metrics != nil {
		p.metrics.ObserveNonce(err)
	}
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Nonce = n

	h := out.Header
	h.Del(csp.HeaderEnforce)
	h.Del(csp.HeaderReportOnly)
	h.Set(p.policy.HeaderName(), p.policy.Header(n))

	// The body differs per response, so validators and lengths from the
	// origin no longer describe it.
	h.Del("Content-Length")
	h.Del("Etag")
	h.Del("Last-Modified")
	h.Del("Accept-Ranges")
	if !cacheRuleMatched {
		h.Set("Cache-Control", htmlNoStore)
	}

	return out, nil
}

// fullRequest returns r, or a copy of r without partialHeaders.
func fullRequest(ctx context.Context, r *http.Request) *http.Request {
	for _, name := range partialHeaders {
		if _, ok := r.Header[name]; !ok {
			continue
		}
		out := r.Clone(ctx)
		for _, h := range partialHeaders {
			out.Header.Del(h)
		}
		return out
	}
	return r
}

// dropNonceBearingPolicy removes origin policies that name a nonce this
// response never had.
func dropNonceBearingPolicy(h http.Header) {
	for _, name := range []string{csp.HeaderEnforce, csp.HeaderReportOnly} {
		for _, v := range h.Values(name) {
			if strings.Contains(v, "'nonce-") {
				h.Del(name)
				break
			}
		}
	}
}

// WriteTo streams the body to w, injecting the nonce into HTML. It closes the
// body and implements io.WriterTo.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	defer r.Close()

	if r.Category != CategoryHTML || r.Nonce == "" {
		return io.Copy(w, r.body)
	}

	stats, err := rewrite.InjectNonce(w, r.body, r.Nonce)
	if r.metrics != nil {
		r.metrics.ObserveRewrite(stats.ScriptTags, stats.Bytes, err)
	}
	return stats.Bytes, err
}

// Close releases the origin body. It is safe to call more than once.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}

// contextReader stops reading once ctx is done, so a client disconnect
// aborts the transform between reads.
type contextReader struct {
	ctx context.Context
	rc  io.ReadCloser
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.rc.Read(p)
}

func (c *contextReader) Close() error {
	return c.rc.Close()
}
