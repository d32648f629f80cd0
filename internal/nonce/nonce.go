// Package nonce issues single-use CSP nonces.
package nonce

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// MinSize is the smallest number of random bytes a nonce may carry.
	MinSize = 16
	// DefaultSize is used when Generator.Size is zero.
	DefaultSize = 18
)

// ErrRandomSource is returned when the random source fails or returns short.
// Callers must fail the request; there is no fallback.
var ErrRandomSource = errors.New("nonce: random source failure")

// Generator draws nonces from Reader (crypto/rand when nil).
// It carries no mutable state and is safe for concurrent use.
type Generator struct {
	Reader io.Reader
	Size   int
}

// New returns a generator that reads size bytes from crypto/rand per nonce.
func New(size int) *Generator {
	return &Generator{Reader: rand.Reader, Size: size}
}

// Generate returns a fresh unpadded URL-safe base64 nonce.
func (g *Generator) Generate() (string, error) {
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, g.size())
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (g *Generator) size() int {
	switch {
	case g.Size == 0:
		return DefaultSize
	case g.Size < MinSize:
		return MinSize
	default:
		return g.Size
	}
}
