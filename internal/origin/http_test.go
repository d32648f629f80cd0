package origin

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prysmi/siteedge/internal/circuitbreaker"
	"github.com/prysmi/siteedge/internal/config"
	"github.com/prysmi/siteedge/internal/metrics"
	"github.com/rs/zerolog"
)

func TestHTTPFetcher_ForwardsRequest(t *testing.T) {
	var got *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "<h1>missing</h1>")
	}))
	defer upstream.Close()

	f, err := NewHTTPFetcher(upstream.URL+"/site/", time.Second, nil)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}

	req := httptest.NewRequest("GET", "http://prysmi.com/blog/post.html?ref=home", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Cookie", "theme=dark")

	resp, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	if resp.Status != http.StatusNotFound {
		t.Errorf("expected origin 404 passed through, got %d", resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<h1>missing</h1>" {
		t.Errorf("unexpected body %q", body)
	}

	if got.URL.Path != "/site/blog/post.html" || got.URL.RawQuery != "ref=home" {
		t.Errorf("unexpected upstream url %s", got.URL)
	}
	if got.Header.Get("Accept-Encoding") == "br" {
		t.Error("client Accept-Encoding must not be forwarded")
	}
	if got.Header.Get("Keep-Alive") != "" {
		t.Error("hop-by-hop request header must be dropped")
	}
	if got.Header.Get("Cookie") != "theme=dark" {
		t.Error("end-to-end request header must be forwarded")
	}
	if got.Header.Get("X-Forwarded-For") != "203.0.113.7" {
		t.Errorf("unexpected X-Forwarded-For %q", got.Header.Get("X-Forwarded-For"))
	}
	if got.Header.Get("X-Forwarded-Host") != "prysmi.com" {
		t.Errorf("unexpected X-Forwarded-Host %q", got.Header.Get("X-Forwarded-Host"))
	}
}

func TestHTTPFetcher_DecodesGzip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("expected transport to negotiate gzip, got %q", r.Header.Get("Accept-Encoding"))
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		io.WriteString(zw, "<script></script>")
		zw.Close()
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer upstream.Close()

	f, err := NewHTTPFetcher(upstream.URL, time.Second, nil)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	resp, err := f.Fetch(context.Background(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<script></script>" {
		t.Errorf("expected decoded body, got %q", body)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Error("Content-Encoding must be dropped after decoding")
	}
}

func TestHTTPFetcher_UnreachableAndBreaker(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled: true,
		Origin:  circuitbreaker.BreakerConfig{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 2},
	}, zerolog.Nop())

	f, err := NewHTTPFetcher(addr, time.Second, breakers)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), httptest.NewRequest("GET", "/", nil))
		if err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("attempt %d: expected connection error, got %v", i, err)
		}
	}

	_, err = f.Fetch(context.Background(), httptest.NewRequest("GET", "/", nil))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestHTTPFetcher_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	f, err := NewHTTPFetcher(upstream.URL, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Fetch(ctx, httptest.NewRequest("GET", "/", nil)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.OriginConfig
		wantErr bool
	}{
		{name: "dir", cfg: config.OriginConfig{Mode: "dir", Dir: t.TempDir()}},
		{name: "http", cfg: config.OriginConfig{Mode: "http", URL: "https://origin.prysmi.com", Timeout: config.Duration{Duration: time.Second}}},
		{name: "bad scheme", cfg: config.OriginConfig{Mode: "http", URL: "ftp://origin"}, wantErr: true},
		{name: "unknown mode", cfg: config.OriginConfig{Mode: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstrument(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	failing := Instrument(FetcherFunc(func(context.Context, *http.Request) (*Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}), "http", m)

	if _, err := failing.Fetch(context.Background(), httptest.NewRequest("GET", "/", nil)); err == nil {
		t.Fatal("expected error")
	}
	if got := promtest.ToFloat64(m.OriginErrorsTotal.WithLabelValues("http", "connection")); got != 1 {
		t.Errorf("expected 1 connection error, got %.0f", got)
	}
}
