// Package responders writes the edge's own JSON bodies.
package responders

import (
	"encoding/json"
	"net/http"
)

// JSON writes an application/json response with status code and payload.
// Edge-generated JSON is never cached, and HEAD requests get headers only.
func JSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Del("Content-Length")
	w.WriteHeader(status)
	if payload == nil || (r != nil && r.Method == http.MethodHead) {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
