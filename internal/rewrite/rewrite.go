// Package rewrite injects a CSP nonce into the script start tags of an HTML
// stream while leaving every other byte of the document untouched.
package rewrite

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// ErrEmptyNonce is returned when InjectNonce is called without a nonce.
var ErrEmptyNonce = errors.New("rewrite: empty nonce")

// Stats describes one completed (or aborted) rewrite.
type Stats struct {
	ScriptTags int   // script start tags that received the nonce
	Bytes      int64 // bytes written to dst
}

// InjectNonce copies src to dst token by token. Every <script> start tag
// (any letter case, self-closing or not) has its existing nonce attributes
// dropped and nonce="<nonce>" appended; all other tokens are copied from the
// tokenizer's raw bytes. Markup the tokenizer cannot complete, such as a tag
// cut off by the end of input, is copied as-is.
//
// Only read and write failures are returned. Stats reflect the bytes written
// before a failure.
func InjectNonce(dst io.Writer, src io.Reader, nonce string) (Stats, error) {
	if nonce == "" {
		return Stats{}, ErrEmptyNonce
	}

	cw := &countingWriter{w: dst}
	attr := []byte(` nonce="` + html.EscapeString(nonce) + `"`)
	z := html.NewTokenizer(src)

	var stats Stats
	for {
		tt := z.Next()
		raw := z.Raw()

		var err error
		if (tt == html.StartTagToken || tt == html.SelfClosingTagToken) && isScriptTag(raw) {
			err = writeScriptTag(cw, raw, attr)
			if err == nil {
				stats.ScriptTags++
			}
		} else if len(raw) > 0 {
			_, err = cw.Write(raw)
		}
		if err != nil {
			stats.Bytes = cw.n
			return stats, fmt.Errorf("rewrite: write: %w", err)
		}

		if tt == html.ErrorToken {
			stats.Bytes = cw.n
			if zerr := z.Err(); zerr != io.EOF {
				return stats, fmt.Errorf("rewrite: read: %w", zerr)
			}
			return stats, nil
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
