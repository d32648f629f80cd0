package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Origin         OriginConfig         `yaml:"origin"`
	Headers        HeadersConfig        `yaml:"headers"`
	CSP            CSPConfig            `yaml:"csp"`
	Cache          []CacheRule          `yaml:"cache" validate:"dive"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address" validate:"required"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	ShutdownTimeout    Duration `yaml:"shutdown_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	Compress           bool     `yaml:"compress"`              // gzip/deflate responses for clients that accept it
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics endpoint (leave empty to disable protection)
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error fatal panic"`
	Format      string `yaml:"format" validate:"omitempty,oneof=json console"`
	Environment string `yaml:"environment"`
}

// OriginConfig selects where responses come from before decoration.
type OriginConfig struct {
	Mode      string   `yaml:"mode" validate:"oneof=dir http"` // "dir" serves a local build, "http" forwards to an upstream
	Dir       string   `yaml:"dir" validate:"required_if=Mode dir"`
	URL       string   `yaml:"url" validate:"required_if=Mode http,omitempty,url"`
	Timeout   Duration `yaml:"timeout"`
	IndexFile string   `yaml:"index_file"`
}

// HeadersConfig lists the static security headers applied to every response.
type HeadersConfig struct {
	STSSeconds           int64             `yaml:"sts_seconds" validate:"gte=0"`
	STSIncludeSubdomains bool              `yaml:"sts_include_subdomains"`
	STSPreload           bool              `yaml:"sts_preload"`
	FrameDeny            bool              `yaml:"frame_deny"`
	ContentTypeNosniff   bool              `yaml:"content_type_nosniff"`
	BrowserXSSFilter     bool              `yaml:"browser_xss_filter"`
	ReferrerPolicy       string            `yaml:"referrer_policy"`
	PermissionsPolicy    string            `yaml:"permissions_policy"`
	Extra                map[string]string `yaml:"extra"` // literal name/value pairs, e.g. Access-Control-Allow-Origin
}

// CSPConfig is the ordered directive list used to build Content-Security-Policy.
type CSPConfig struct {
	Directives []CSPDirective `yaml:"directives" validate:"min=1,dive"`
	ReportOnly bool           `yaml:"report_only"`
	ReportURI  string         `yaml:"report_uri" validate:"omitempty,uri"`
	NonceBytes int            `yaml:"nonce_bytes" validate:"omitempty,gte=16,lte=64"`
}

// CSPDirective is one policy directive. Nonce marks directives that carry the per-request nonce.
type CSPDirective struct {
	Name    string   `yaml:"name" validate:"required"`
	Sources []string `yaml:"sources"`
	Nonce   bool     `yaml:"nonce"`
}

// CacheRule applies a Cache-Control value to paths under a prefix.
type CacheRule struct {
	PathPrefix   string `yaml:"path_prefix" validate:"required,startswith=/"`
	CacheControl string `yaml:"cache_control" validate:"required"`
}

// RateLimitConfig configures request rate limits.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit" validate:"gte=0"`
	GlobalWindow  Duration `yaml:"global_window"`
	PerIPEnabled  bool     `yaml:"per_ip_enabled"`
	PerIPLimit    int      `yaml:"per_ip_limit" validate:"gte=0"`
	PerIPWindow   Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig holds circuit breaker configuration for the upstream origin.
type CircuitBreakerConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Origin  BreakerServiceConfig `yaml:"origin"`
}

// BreakerServiceConfig configures a single circuit breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests         uint32   `yaml:"min_requests"`
}
