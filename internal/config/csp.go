package config

import (
	"strings"

	"github.com/prysmi/siteedge/internal/csp"
)

// Policy converts the directive list into a csp.Policy.
func (c CSPConfig) Policy() csp.Policy {
	p := csp.Policy{
		Directives: make([]csp.Directive, 0, len(c.Directives)),
		ReportOnly: c.ReportOnly,
		ReportURI:  c.ReportURI,
	}
	for _, d := range c.Directives {
		p.Directives = append(p.Directives, csp.Directive{
			Name:    strings.ToLower(strings.TrimSpace(d.Name)),
			Sources: append([]string(nil), d.Sources...),
			Nonce:   d.Nonce,
		})
	}
	return p
}
