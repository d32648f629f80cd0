package httpserver

import (
	"net/http"
	"time"

	"github.com/prysmi/siteedge/internal/circuitbreaker"
	"github.com/prysmi/siteedge/pkg/responders"
)

// health reports liveness plus the state of the origin circuit breaker.
// An open breaker means site requests are failing fast, so the edge reports
// itself degraded.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	status := "ok"
	statusCode := http.StatusOK

	response := map[string]any{
		"uptime":     now.Sub(serverStartTime).Round(time.Second).String(),
		"timestamp":  now.UTC(),
		"originMode": h.cfg.Origin.Mode,
	}

	if h.breakers != nil {
		state := h.breakers.State(circuitbreaker.ServiceOrigin)
		response["originBreaker"] = map[string]any{
			"state":  state,
			"counts": h.breakers.Counts(circuitbreaker.ServiceOrigin),
		}
		if state == "open" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	features := []string{"csp-nonce"}
	if h.cfg.CSP.ReportOnly {
		features = append(features, "csp-report-only")
	}
	if h.cfg.Server.Compress {
		features = append(features, "compression")
	}
	if h.cfg.CircuitBreaker.Enabled {
		features = append(features, "circuit-breaker")
	}
	response["features"] = features
	response["status"] = status

	responders.JSON(w, r, statusCode, response)
}
