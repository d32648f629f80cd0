package transform

import (
	"context"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/prysmi/siteedge/internal/errors"
	"github.com/prysmi/siteedge/internal/logger"
	"github.com/prysmi/siteedge/internal/metrics"
	"github.com/prysmi/siteedge/internal/nonce"
	"github.com/prysmi/siteedge/internal/origin"
)

// Handler serves every request through a Pipeline.
type Handler struct {
	pipeline *Pipeline
	metrics  *metrics.Metrics
}

// NewHandler returns an http.Handler backed by p.
func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p, metrics: p.metrics}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())

	resp, err := h.pipeline.Decorate(r.Context(), r)
	if err != nil {
		code, message := errorCode(err)
		event := log.Error()
		if code.IsRetryable() {
			event = log.Warn()
		}
		event.Err(err).Str("error_code", string(code)).Msg("transform.decorate_failed")

		// Error responses carry the static set too.
		if herr := h.pipeline.headers.Apply(w.Header(), r); herr != nil {
			log.Error().Err(herr).Msg("transform.error_headers_failed")
		}
		apierrors.WriteSimpleError(w, r, code, message)
		h.observe("error", code.HTTPStatus(), start)
		return
	}

	dst := w.Header()
	for name, values := range resp.Header {
		dst[name] = values
	}
	w.WriteHeader(resp.Status)

	if r.Method == http.MethodHead || !bodyAllowed(resp.Status) {
		resp.Close()
		h.observe(string(resp.Category), resp.Status, start)
		return
	}

	if _, err := resp.WriteTo(w); err != nil {
		// Headers are already on the wire; all that is left is to record it.
		if errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("transform.client_gone")
		} else {
			log.Warn().
				Err(err).
				Str("category", string(resp.Category)).
				Msg("transform.stream_failed")
		}
	}
	h.observe(string(resp.Category), resp.Status, start)
}

func (h *Handler) observe(category string, status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveResponse(category, status, time.Since(start))
	}
}

func errorCode(err error) (apierrors.ErrorCode, string) {
	switch {
	case errors.Is(err, origin.ErrCircuitOpen):
		return apierrors.ErrCodeUpstreamCircuitOpen, "origin temporarily unavailable"
	case errors.Is(err, ErrUpstreamUnavailable) && errors.Is(err, context.DeadlineExceeded):
		return apierrors.ErrCodeUpstreamTimeout, "origin timed out"
	case errors.Is(err, ErrUpstreamUnavailable):
		return apierrors.ErrCodeUpstreamUnavailable, "origin unavailable"
	case errors.Is(err, nonce.ErrRandomSource):
		return apierrors.ErrCodeNonceUnavailable, "unable to secure response"
	case errors.Is(err, ErrHeaderPolicy):
		return apierrors.ErrCodeHeaderPolicy, "unable to secure response"
	default:
		return apierrors.ErrCodeInternalError, "internal error"
	}
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
