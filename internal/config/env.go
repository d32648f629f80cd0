package config

import (
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use SITEEDGE_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "SITEEDGE_SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "SITEEDGE_ADMIN_METRICS_API_KEY")
	setBoolIfEnv(&c.Server.Compress, "SITEEDGE_SERVER_COMPRESS")
	setDurationIfEnv(&c.Server.ReadTimeout, "SITEEDGE_SERVER_READ_TIMEOUT")
	setDurationIfEnv(&c.Server.WriteTimeout, "SITEEDGE_SERVER_WRITE_TIMEOUT")
	setDurationIfEnv(&c.Server.ShutdownTimeout, "SITEEDGE_SERVER_SHUTDOWN_TIMEOUT")
	if v := os.Getenv("SITEEDGE_CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitList(v)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "SITEEDGE_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "SITEEDGE_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "SITEEDGE_ENVIRONMENT")

	// Origin config
	setIfEnv(&c.Origin.Mode, "SITEEDGE_ORIGIN_MODE")
	setIfEnv(&c.Origin.Dir, "SITEEDGE_ORIGIN_DIR")
	setIfEnv(&c.Origin.URL, "SITEEDGE_ORIGIN_URL")
	setDurationIfEnv(&c.Origin.Timeout, "SITEEDGE_ORIGIN_TIMEOUT")

	// Header config
	setIfEnv(&c.Headers.PermissionsPolicy, "SITEEDGE_PERMISSIONS_POLICY")
	setIfEnv(&c.Headers.ReferrerPolicy, "SITEEDGE_REFERRER_POLICY")
	setBoolIfEnv(&c.Headers.STSPreload, "SITEEDGE_STS_PRELOAD")
	if v := os.Getenv("SITEEDGE_STS_SECONDS"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Headers.STSSeconds = secs
		}
	}
	// Load extra static headers (SITEEDGE_HEADER_*)
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "SITEEDGE_HEADER_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimPrefix(parts[0], "SITEEDGE_HEADER_")
		if name == "" {
			continue
		}
		if c.Headers.Extra == nil {
			c.Headers.Extra = make(map[string]string)
		}
		headerName := textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(name, "_", "-"))
		c.Headers.Extra[headerName] = parts[1]
	}

	// CSP config
	setBoolIfEnv(&c.CSP.ReportOnly, "SITEEDGE_CSP_REPORT_ONLY")
	setIfEnv(&c.CSP.ReportURI, "SITEEDGE_CSP_REPORT_URI")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "SITEEDGE_RATE_LIMIT_GLOBAL_ENABLED")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "SITEEDGE_RATE_LIMIT_PER_IP_ENABLED")
	setIntIfEnv(&c.RateLimit.GlobalLimit, "SITEEDGE_RATE_LIMIT_GLOBAL_LIMIT")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "SITEEDGE_RATE_LIMIT_PER_IP_LIMIT")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "SITEEDGE_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer from an environment variable if it's non-empty.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// splitList splits a comma separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
