package rewrite

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

const testNonce = "Xy9_abc-DEF"

func inject(t *testing.T, in string) (string, Stats) {
	t.Helper()
	var out bytes.Buffer
	stats, err := InjectNonce(&out, strings.NewReader(in), testNonce)
	if err != nil {
		t.Fatalf("InjectNonce(%q): %v", in, err)
	}
	if stats.Bytes != int64(out.Len()) {
		t.Errorf("stats.Bytes = %d, wrote %d", stats.Bytes, out.Len())
	}
	return out.String(), stats
}

func TestInjectNonce(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		tags int
	}{
		{
			name: "external script",
			in:   `<html><script src="a.js"></script></html>`,
			want: `<html><script src="a.js" nonce="Xy9_abc-DEF"></script></html>`,
			tags: 1,
		},
		{
			name: "inline script",
			in:   "<p>hi</p><script>var a = '<b>';</script>",
			want: "<p>hi</p><script nonce=\"Xy9_abc-DEF\">var a = '<b>';</script>",
			tags: 1,
		},
		{
			name: "uppercase tag name preserved",
			in:   `<SCRIPT SRC="a.js"></SCRIPT>`,
			want: `<SCRIPT SRC="a.js" nonce="Xy9_abc-DEF"></SCRIPT>`,
			tags: 1,
		},
		{
			name: "existing nonce replaced",
			in:   `<script nonce="old" src="a.js"></script>`,
			want: `<script src="a.js" nonce="Xy9_abc-DEF"></script>`,
			tags: 1,
		},
		{
			name: "duplicate and unquoted nonces removed",
			in:   `<script NONCE=old defer nonce='older'></script>`,
			want: `<script defer nonce="Xy9_abc-DEF"></script>`,
			tags: 1,
		},
		{
			name: "valueless nonce removed",
			in:   `<script async nonce></script>`,
			want: `<script async nonce="Xy9_abc-DEF"></script>`,
			tags: 1,
		},
		{
			name: "self closing",
			in:   `<script src="a.js"/>`,
			want: `<script src="a.js" nonce="Xy9_abc-DEF"/>`,
			tags: 1,
		},
		{
			name: "bare self closing",
			in:   `<script/>`,
			want: `<script nonce="Xy9_abc-DEF"/>`,
			tags: 1,
		},
		{
			name: "slash inside unquoted value",
			in:   `<script src=/js/a/>`,
			want: `<script src=/js/a/ nonce="Xy9_abc-DEF">`,
			tags: 1,
		},
		{
			name: "gt inside quoted value",
			in:   `<script data-x="a>b" src="a.js"></script>`,
			want: `<script data-x="a>b" src="a.js" nonce="Xy9_abc-DEF"></script>`,
			tags: 1,
		},
		{
			name: "attribute whitespace preserved",
			in:   "<script\n\ttype=\"module\"\n  src = 'm.js' ></script>",
			want: "<script\n\ttype=\"module\"\n  src = 'm.js'  nonce=\"Xy9_abc-DEF\"></script>",
			tags: 1,
		},
		{
			name: "script text in attribute value untouched",
			in:   `<div title="<script>alert(1)</script>"></div>`,
			want: `<div title="<script>alert(1)</script>"></div>`,
		},
		{
			name: "script text in textarea untouched",
			in:   `<textarea><script src="x.js"></script></textarea>`,
			want: `<textarea><script src="x.js"></script></textarea>`,
		},
		{
			name: "script text in comment untouched",
			in:   `<!-- <script src="x.js"></script> -->`,
			want: `<!-- <script src="x.js"></script> -->`,
		},
		{
			name: "script text in title and style untouched",
			in:   `<title><script></title><style>a::after{content:"<script>"}</style>`,
			want: `<title><script></title><style>a::after{content:"<script>"}</style>`,
		},
		{
			name: "script text inside script body untouched",
			in:   `<script>document.write("<script src=b.js><\/script>")</script>`,
			want: `<script nonce="Xy9_abc-DEF">document.write("<script src=b.js><\/script>")</script>`,
			tags: 1,
		},
		{
			name: "json payload untouched",
			in:   `<script type="application/json">{"html":"<script>"}</script>`,
			want: `<script type="application/json" nonce="Xy9_abc-DEF">{"html":"<script>"}</script>`,
			tags: 1,
		},
		{
			name: "similar tag names untouched",
			in:   `<scripts></scripts><script-x></script-x><noscript>x</noscript>`,
			want: `<scripts></scripts><script-x></script-x><noscript>x</noscript>`,
		},
		{
			name: "multiple scripts",
			in:   `<head><script src="a.js"></script></head><body><script>1</script></body>`,
			want: `<head><script src="a.js" nonce="Xy9_abc-DEF"></script></head><body><script nonce="Xy9_abc-DEF">1</script></body>`,
			tags: 2,
		},
		{
			name: "partial trailing tag copied verbatim",
			in:   `<p>ok</p><script src="a.j`,
			want: `<p>ok</p><script src="a.j`,
		},
		{
			name: "stray less-than",
			in:   `a < b && <c> </ d`,
			want: `a < b && <c> </ d`,
		},
		{
			name: "empty body",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats := inject(t, tt.in)
			if got != tt.want {
				t.Errorf("\n got: %s\nwant: %s", got, tt.want)
			}
			if stats.ScriptTags != tt.tags {
				t.Errorf("expected %d script tags, got %d", tt.tags, stats.ScriptTags)
			}
		})
	}
}

func TestInjectNonce_PreservesBytesOutsideScriptTags(t *testing.T) {
	doc := "<!DOCTYPE html>\r\n<html lang=en>\n<head>\n  <meta charset=\"utf-8\">\n" +
		"  <script async src=\"https://www.googletagmanager.com/gtag/js?id=G-1&amp;x=1\"></script>\n" +
		"</head>\n<body>\x00 caf\xc3\xa9 &nbsp; <img src=x onerror=\"'<script>'\">\n" +
		"<script>\n  window.dataLayer = window.dataLayer || [];\n</script>\n</body></html>\n"

	got, stats := inject(t, doc)
	if stats.ScriptTags != 2 {
		t.Fatalf("expected 2 script tags, got %d", stats.ScriptTags)
	}

	stripped := strings.ReplaceAll(got, ` nonce="`+testNonce+`"`, "")
	if stripped != doc {
		t.Errorf("document changed outside nonce insertions:\n got: %q\nwant: %q", stripped, doc)
	}
}

func TestInjectNonce_SmallReads(t *testing.T) {
	in := strings.Repeat(`<div class="x"><script src="a.js"></script></div>`, 200)

	var out bytes.Buffer
	stats, err := InjectNonce(&out, iotest.OneByteReader(strings.NewReader(in)), testNonce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ScriptTags != 200 {
		t.Errorf("expected 200 tags, got %d", stats.ScriptTags)
	}
	if strings.Count(out.String(), `nonce="`+testNonce+`"`) != 200 {
		t.Error("expected one nonce per script tag")
	}
}

func TestInjectNonce_EscapesNonce(t *testing.T) {
	var out bytes.Buffer
	if _, err := InjectNonce(&out, strings.NewReader("<script></script>"), `a"b`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `<script nonce="a&#34;b"></script>`; out.String() != want {
		t.Errorf("got %s, want %s", out.String(), want)
	}
}

func TestInjectNonce_Errors(t *testing.T) {
	t.Run("empty nonce", func(t *testing.T) {
		_, err := InjectNonce(io.Discard, strings.NewReader("<script>"), "")
		if !errors.Is(err, ErrEmptyNonce) {
			t.Errorf("expected ErrEmptyNonce, got %v", err)
		}
	})

	t.Run("read error", func(t *testing.T) {
		readErr := errors.New("origin reset")
		src := io.MultiReader(strings.NewReader("<p>partial"), iotest.ErrReader(readErr))

		var out bytes.Buffer
		stats, err := InjectNonce(&out, src, testNonce)
		if !errors.Is(err, readErr) {
			t.Fatalf("expected read error, got %v", err)
		}
		if stats.Bytes != int64(out.Len()) {
			t.Errorf("stats.Bytes = %d, wrote %d", stats.Bytes, out.Len())
		}
	})

	t.Run("write error", func(t *testing.T) {
		writeErr := errors.New("client gone")
		_, err := InjectNonce(failingWriter{err: writeErr}, strings.NewReader("<script></script>"), testNonce)
		if !errors.Is(err, writeErr) {
			t.Errorf("expected write error, got %v", err)
		}
	})
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }
