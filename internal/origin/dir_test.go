package origin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":             `<html><script src="a.js"></script></html>`,
		"docs/index.html":        `<h1>docs</h1>`,
		"assets/logo.png":        "\x89PNG\r\n\x1a\n",
		"assets/fonts/inter.css": "@font-face{}",
	}
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDirFetcher_Fetch(t *testing.T) {
	f := NewDirFetcher(writeSite(t), "")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantType   string
		wantBody   string
		checkBody  bool
	}{
		{name: "index by name", method: "GET", path: "/index.html", wantStatus: 200, wantType: "text/html; charset=utf-8", wantBody: `<html><script src="a.js"></script></html>`, checkBody: true},
		{name: "root", method: "GET", path: "/", wantStatus: 200, wantType: "text/html; charset=utf-8", wantBody: `<html><script src="a.js"></script></html>`, checkBody: true},
		{name: "directory without slash", method: "GET", path: "/docs", wantStatus: 200, wantBody: `<h1>docs</h1>`, checkBody: true},
		{name: "image", method: "GET", path: "/assets/logo.png", wantStatus: 200, wantType: "image/png", wantBody: "\x89PNG\r\n\x1a\n", checkBody: true},
		{name: "missing", method: "GET", path: "/nope.html", wantStatus: 404},
		{name: "traversal stays in root", method: "GET", path: "/../../etc/passwd", wantStatus: 404},
		{name: "head has no body", method: "HEAD", path: "/index.html", wantStatus: 200, wantBody: "", checkBody: true},
		{name: "post rejected", method: "POST", path: "/index.html", wantStatus: 405},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://prysmi.com"+tt.path, nil)
			resp, err := f.Fetch(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()

			if resp.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.Status, tt.wantStatus)
			}
			if tt.wantType != "" && resp.Header.Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), tt.wantType)
			}
			if tt.checkBody {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
		})
	}
}

func TestDirFetcher_CanceledContext(t *testing.T) {
	f := NewDirFetcher(writeSite(t), "index.html")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, httptest.NewRequest("GET", "/", nil)); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCaptureWriter_FirstStatusWins(t *testing.T) {
	w := newCaptureWriter()
	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("x"))

	if w.status != http.StatusNotFound || w.body.String() != "x" {
		t.Errorf("unexpected capture: %d %q", w.status, w.body.String())
	}
}
