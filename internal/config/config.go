package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// The header set and policy match what prysmi.com ships today.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration{Duration: 15 * time.Second},
			WriteTimeout:    Duration{Duration: 30 * time.Second},
			IdleTimeout:     Duration{Duration: 60 * time.Second},
			ShutdownTimeout: Duration{Duration: 10 * time.Second},
		},
		Origin: OriginConfig{
			Mode:      "dir",
			Dir:       "./dist",
			Timeout:   Duration{Duration: 10 * time.Second},
			IndexFile: "index.html",
		},
		Headers: HeadersConfig{
			STSSeconds:           31536000,
			STSIncludeSubdomains: true,
			FrameDeny:            true,
			ContentTypeNosniff:   true,
			BrowserXSSFilter:     true,
			ReferrerPolicy:       "strict-origin-when-cross-origin",
			PermissionsPolicy:    "camera=(), geolocation=(), microphone=()",
			Extra: map[string]string{
				"Access-Control-Allow-Origin": "https://prysmi.com",
				"X-Robots-Tag":                "all",
			},
		},
		CSP: CSPConfig{
			Directives: []CSPDirective{
				{Name: "default-src", Sources: []string{"'self'"}},
				{Name: "script-src", Sources: []string{"'self'", "https://www.googletagmanager.com", "https://cdn.jsdelivr.net"}, Nonce: true},
				{Name: "style-src", Sources: []string{"'self'", "'unsafe-inline'"}},
				{Name: "font-src", Sources: []string{"'self'"}},
				{Name: "img-src", Sources: []string{"'self'", "data:", "raw.githubusercontent.com"}},
				{Name: "frame-src", Sources: []string{"'self'", "https://www.googletagmanager.com"}},
				{Name: "connect-src", Sources: []string{"'self'", "https://www.google-analytics.com"}},
				{Name: "object-src", Sources: []string{"'none'"}},
				{Name: "base-uri", Sources: []string{"'self'"}},
			},
			NonceBytes: 18,
		},
		Cache: []CacheRule{
			{PathPrefix: "/assets/fonts/", CacheControl: "public, max-age=31536000, immutable"},
		},
		RateLimit: RateLimitConfig{
			// Generous limits - a static site should never hit these under normal browsing
			GlobalEnabled: true,
			GlobalLimit:   5000,
			GlobalWindow:  Duration{Duration: 1 * time.Minute},
			PerIPEnabled:  true,
			PerIPLimit:    300,
			PerIPWindow:   Duration{Duration: 1 * time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			Origin: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
