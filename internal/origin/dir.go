package origin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// DirFetcher serves files from a local build directory.
//
// Unlike http.FileServer it does not redirect "/index.html" to "/": the edge
// returns whatever the build contains at the requested path.
type DirFetcher struct {
	root      http.FileSystem
	indexFile string
}

// NewDirFetcher serves dir, using indexFile for directory requests.
func NewDirFetcher(dir, indexFile string) *DirFetcher {
	if indexFile == "" {
		indexFile = "index.html"
	}
	return &DirFetcher{root: http.Dir(dir), indexFile: indexFile}
}

// Fetch resolves r.URL.Path inside the directory and captures the result.
func (d *DirFetcher) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := newCaptureWriter()
	d.serve(w, r)

	return &Response{
		Status: w.status,
		Header: w.header,
		Body:   io.NopCloser(bytes.NewReader(w.body.Bytes())),
	}, nil
}

func (d *DirFetcher) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, d.indexFile)
	}

	f, info, err := d.open(name)
	if err == nil && info.IsDir() {
		f.Close()
		f, info, err = d.open(path.Join(name, d.indexFile))
	}
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, fs.ErrNotExist):
			status = http.StatusNotFound
		case errors.Is(err, fs.ErrPermission):
			status = http.StatusForbidden
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer f.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (d *DirFetcher) open(name string) (http.File, fs.FileInfo, error) {
	f, err := d.root.Open(name)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", name, err)
	}
	return f, info, nil
}

// captureWriter buffers what a handler writes so it can be decorated later.
type captureWriter struct {
	status int
	header http.Header
	body   bytes.Buffer
	wrote  bool
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{status: http.StatusOK, header: make(http.Header)}
}

func (w *captureWriter) Header() http.Header {
	return w.header
}

func (w *captureWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.status = code
	w.wrote = true
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.body.Write(b)
}
