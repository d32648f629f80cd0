// Package secheaders applies the static security header set and the
// path-based cache rules to outbound responses.
package secheaders

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prysmi/siteedge/internal/config"
	"github.com/unrolled/secure"
)

// CacheRule sets Cache-Control on responses whose path starts with PathPrefix.
type CacheRule struct {
	PathPrefix   string
	CacheControl string
}

// Set is the immutable static header set. It is safe for concurrent use.
type Set struct {
	secure *secure.Secure
	extra  []header
	cache  []CacheRule
}

type header struct {
	name, value string
}

// New builds a Set from configuration.
func New(cfg config.HeadersConfig, cache []config.CacheRule) *Set {
	s := &Set{
		secure: secure.New(secure.Options{
			STSSeconds:           cfg.STSSeconds,
			STSIncludeSubdomains: cfg.STSIncludeSubdomains,
			STSPreload:           cfg.STSPreload,
			// TLS terminates in front of the edge, so the request never looks secure here.
			ForceSTSHeader:     true,
			FrameDeny:          cfg.FrameDeny,
			ContentTypeNosniff: cfg.ContentTypeNosniff,
			BrowserXssFilter:   cfg.BrowserXSSFilter,
			ReferrerPolicy:     cfg.ReferrerPolicy,
			PermissionsPolicy:  cfg.PermissionsPolicy,
		}),
	}

	names := make([]string, 0, len(cfg.Extra))
	for name := range cfg.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.extra = append(s.extra, header{name: http.CanonicalHeaderKey(name), value: cfg.Extra[name]})
	}

	for _, rule := range cache {
		s.cache = append(s.cache, CacheRule{PathPrefix: rule.PathPrefix, CacheControl: rule.CacheControl})
	}
	return s
}

// Apply overwrites every static header on h so each appears exactly once.
// Values already present from the origin are replaced, not appended to.
func (s *Set) Apply(h http.Header, r *http.Request) error {
	static, _, err := s.secure.ProcessNoModifyRequest(headerWriter{h: h}, r)
	if err != nil {
		return fmt.Errorf("secheaders: %w", err)
	}

	for name, values := range static {
		if len(values) == 0 {
			continue
		}
		h.Set(name, values[len(values)-1])
	}
	for _, e := range s.extra {
		h.Set(e.name, e.value)
	}
	return nil
}

// ApplyCache sets Cache-Control from the first rule matching path.
// It reports whether a rule matched.
func (s *Set) ApplyCache(h http.Header, path string) bool {
	for _, rule := range s.cache {
		if strings.HasPrefix(path, rule.PathPrefix) {
			h.Set("Cache-Control", rule.CacheControl)
			return true
		}
	}
	return false
}

// headerWriter hands secure a ResponseWriter without letting it write a response.
type headerWriter struct {
	h http.Header
}

func (w headerWriter) Header() http.Header         { return w.h }
func (w headerWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w headerWriter) WriteHeader(int)             {}
