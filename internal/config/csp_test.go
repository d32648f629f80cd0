package config

import (
	"strings"
	"testing"
)

func TestCSPConfig_Policy(t *testing.T) {
	p := CSPConfig{
		Directives: []CSPDirective{
			{Name: " Script-Src ", Sources: []string{"'self'"}, Nonce: true},
		},
		ReportOnly: true,
		ReportURI:  "https://prysmi.com/csp",
	}.Policy()

	if p.Directives[0].Name != "script-src" {
		t.Errorf("expected normalised name, got %q", p.Directives[0].Name)
	}
	if !p.ReportOnly || p.ReportURI != "https://prysmi.com/csp" {
		t.Error("expected report settings carried over")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		wantErr string
	}{
		{name: "source with separator", sources: []string{"'self';"}, wantErr: `has invalid source "'self';"`},
		{name: "empty source", sources: []string{""}, wantErr: "has invalid source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.CSP.Directives = []CSPDirective{{Name: "script-src", Sources: tt.sources, Nonce: true}}

			err := cfg.finalize()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
