package httpserver

import (
	"net/http"

	"github.com/prysmi/siteedge/internal/logger"
	"github.com/prysmi/siteedge/internal/secheaders"
)

// securityHeadersMiddleware applies the static header set to the edge's own
// endpoints (health, metrics). Site responses get it from the transform
// pipeline, which must run after the origin headers are known.
func securityHeadersMiddleware(set *secheaders.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := set.Apply(w.Header(), r); err != nil {
				log := logger.FromContext(r.Context())
				log.Error().Err(err).Msg("security_headers.apply_failed")
			}
			next.ServeHTTP(w, r)
		})
	}
}
