// Package csp builds Content-Security-Policy header values.
package csp

import (
	"errors"
	"fmt"
	"strings"
)

const (
	HeaderEnforce    = "Content-Security-Policy"
	HeaderReportOnly = "Content-Security-Policy-Report-Only"
)

// Directive is one policy directive. When Nonce is set the per-response
// nonce source is added to it.
type Directive struct {
	Name    string
	Sources []string
	Nonce   bool
}

// Policy is an ordered, immutable list of directives.
type Policy struct {
	Directives []Directive
	ReportOnly bool
	ReportURI  string
}

// HeaderName returns the header the policy is delivered in.
func (p Policy) HeaderName() string {
	if p.ReportOnly {
		return HeaderReportOnly
	}
	return HeaderEnforce
}

// Header renders the policy. An empty nonce renders the policy without any
// nonce source.
func (p Policy) Header(nonce string) string {
	var b strings.Builder
	for i, d := range p.Directives {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(d.Name)
		for _, src := range d.sources(nonce) {
			b.WriteByte(' ')
			b.WriteString(src)
		}
	}
	if p.ReportURI != "" {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString("report-uri ")
		b.WriteString(p.ReportURI)
	}
	return b.String()
}

func (d Directive) sources(nonce string) []string {
	if !d.Nonce || nonce == "" {
		return d.Sources
	}

	token := "'nonce-" + nonce + "'"
	out := make([]string, 0, len(d.Sources)+1)
	inserted := false
	for _, src := range d.Sources {
		out = append(out, src)
		if !inserted && src == "'self'" {
			out = append(out, token)
			inserted = true
		}
	}
	if !inserted {
		out = append([]string{token}, out...)
	}
	return out
}

// Validate checks the policy shape.
func (p Policy) Validate() error {
	if len(p.Directives) == 0 {
		return errors.New("csp: policy has no directives")
	}

	seen := make(map[string]struct{}, len(p.Directives))
	scriptNonce := false
	for i, d := range p.Directives {
		if d.Name == "" {
			return fmt.Errorf("csp: directive %d has no name", i)
		}
		if strings.ContainsAny(d.Name, " ;,") {
			return fmt.Errorf("csp: invalid directive name %q", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("csp: duplicate directive %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		for _, src := range d.Sources {
			if src == "" || strings.ContainsAny(src, " ;,") {
				return fmt.Errorf("csp: directive %q has invalid source %q", d.Name, src)
			}
		}
		if d.Name == "script-src" && d.Nonce {
			scriptNonce = true
		}
	}
	if !scriptNonce {
		return errors.New("csp: script-src with nonce enabled is required")
	}
	return nil
}
