package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := NewClient(time.Second).Get(srv.URL + "/old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently {
		t.Errorf("expected 301 passed through, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/new" {
		t.Errorf("expected Location /new, got %q", loc)
	}
}

func TestRemoveHopHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive, X-Session-Hint")
	h.Set("X-Session-Hint", "1")
	h.Set("Keep-Alive", "timeout=5")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Content-Type", "text/html")

	RemoveHopHeaders(h)

	for _, name := range []string{"Connection", "X-Session-Hint", "Keep-Alive", "Transfer-Encoding"} {
		if h.Get(name) != "" {
			t.Errorf("expected %s removed", name)
		}
	}
	if h.Get("Content-Type") != "text/html" {
		t.Error("end-to-end header must be kept")
	}
}
