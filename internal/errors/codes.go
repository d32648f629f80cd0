package errors

// ErrorCode represents a machine-readable error identifier returned in JSON error bodies.
type ErrorCode string

// Upstream Errors (origin could not produce a response)
const (
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamCircuitOpen ErrorCode = "upstream_circuit_open"
	ErrCodeUpstreamTimeout     ErrorCode = "upstream_timeout"
)

// Transform Errors (the edge could not decorate the response)
const (
	ErrCodeNonceUnavailable ErrorCode = "nonce_unavailable"
	ErrCodeHeaderPolicy     ErrorCode = "header_policy_error"
)

// Access Errors
const (
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeRateLimited  ErrorCode = "rate_limited"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether a client may reasonably retry the same request.
// The edge itself never retries.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeUpstreamUnavailable,
		ErrCodeUpstreamCircuitOpen,
		ErrCodeUpstreamTimeout,
		ErrCodeRateLimited:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 401 Unauthorized - admin endpoints
	case ErrCodeUnauthorized:
		return 401

	// 429 Too Many Requests
	case ErrCodeRateLimited:
		return 429

	// 502 Bad Gateway - origin unreachable
	case ErrCodeUpstreamUnavailable:
		return 502

	// 503 Service Unavailable - origin breaker open
	case ErrCodeUpstreamCircuitOpen:
		return 503

	// 504 Gateway Timeout
	case ErrCodeUpstreamTimeout:
		return 504

	// 500 Internal Server Error - nonce, policy and system errors
	default:
		return 500
	}
}
