package rewrite

import (
	"bytes"
	"io"
)

// The scanner below walks a complete raw start tag ("<name ...>") with the
// same state transitions as the x/net/html tokenizer, but records byte
// offsets instead of lowering names in place. The tokenizer's TagName and
// TagAttr mutate its buffer, which would corrupt the verbatim copy.

var (
	scriptName = []byte("script")
	nonceName  = []byte("nonce")
)

// attrSpan locates one attribute inside a raw tag. lead is where the
// whitespace before the attribute starts; [lead, end) is what removal drops.
type attrSpan struct {
	lead, start, end int
	name             []byte
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f'
}

// tagNameEnd returns the offset just past the tag name of raw.
func tagNameEnd(raw []byte) int {
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	return i
}

func isScriptTag(raw []byte) bool {
	if len(raw) < 2 || raw[0] != '<' {
		return false
	}
	return bytes.EqualFold(raw[1:tagNameEnd(raw)], scriptName)
}

// scanAttrs returns the attributes of raw, which must end in '>'.
func scanAttrs(raw []byte) []attrSpan {
	var attrs []attrSpan
	n := len(raw) - 1 // closing '>'
	i := tagNameEnd(raw)

	for i < n {
		lead := i
		for i < n && isSpace(raw[i]) {
			i++
		}
		if i >= n {
			break
		}

		// Attribute name. A leading '=' belongs to the name.
		keyStart := i
		for i < n {
			c := raw[i]
			if c == '=' && i == keyStart {
				i++
				continue
			}
			if isSpace(c) || c == '/' || c == '>' || c == '=' {
				break
			}
			i++
		}
		keyEnd := i
		end := keyEnd

		// Optional value.
		j := i
		for j < n && isSpace(raw[j]) {
			j++
		}
		switch {
		case j >= n:
			i = j
		case raw[j] == '/':
			i = j + 1
		case raw[j] != '=':
			i = keyEnd
		default:
			j++
			for j < n && isSpace(raw[j]) {
				j++
			}
			switch {
			case j >= n:
				i, end = j, j
			case raw[j] == '"' || raw[j] == '\'':
				q := raw[j]
				k := j + 1
				for k < n && raw[k] != q {
					k++
				}
				if k < n {
					k++
				}
				i, end = k, k
			default:
				k := j
				for k < n && !isSpace(raw[k]) {
					k++
				}
				i, end = k, k
			}
		}

		if keyEnd > keyStart {
			attrs = append(attrs, attrSpan{lead: lead, start: keyStart, end: end, name: raw[keyStart:keyEnd]})
		}
	}
	return attrs
}

// writeScriptTag writes raw with every nonce attribute removed and attr
// inserted at the end of the attribute list.
func writeScriptTag(w io.Writer, raw, attr []byte) error {
	if len(raw) < 2 || raw[len(raw)-1] != '>' {
		_, err := w.Write(raw)
		return err
	}

	attrs := scanAttrs(raw)

	insertAt := len(raw) - 1
	if slash := len(raw) - 2; slash >= tagNameEnd(raw) && raw[slash] == '/' && !inValue(attrs, slash) {
		insertAt = slash
	}

	out := make([]byte, 0, len(raw)+len(attr))
	pos := 0
	for _, a := range attrs {
		if !bytes.EqualFold(a.name, nonceName) {
			continue
		}
		out = append(out, raw[pos:a.lead]...)
		pos = a.end
	}
	out = append(out, raw[pos:insertAt]...)
	out = append(out, attr...)
	out = append(out, raw[insertAt:]...)

	_, err := w.Write(out)
	return err
}

func inValue(attrs []attrSpan, off int) bool {
	for _, a := range attrs {
		if off >= a.start && off < a.end {
			return true
		}
	}
	return false
}
