package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	// Apply defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Origin.IndexFile == "" {
		c.Origin.IndexFile = "index.html"
	}
	c.Origin.Mode = strings.ToLower(strings.TrimSpace(c.Origin.Mode))
	c.Origin.URL = strings.TrimSuffix(strings.TrimSpace(c.Origin.URL), "/")

	// Directive names are case-insensitive in browsers; store them lowercase so duplicates are caught
	for i := range c.CSP.Directives {
		c.CSP.Directives[i].Name = strings.ToLower(strings.TrimSpace(c.CSP.Directives[i].Name))
	}

	if err := validateStruct(c); err != nil {
		return err
	}

	return c.validateSemantics()
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names so errors match what operators edit
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs tag based validation and flattens the result into one readable error.
func validateStruct(c *Config) error {
	err := structValidator.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// validateSemantics checks rules that span several fields.
func (c *Config) validateSemantics() error {
	if c.Origin.Mode == "http" {
		u, err := url.Parse(c.Origin.URL)
		if err != nil {
			return fmt.Errorf("origin.url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("origin.url must use http or https, got %q", u.Scheme)
		}
	}

	if err := c.CSP.Policy().Validate(); err != nil {
		return fmt.Errorf("csp.directives: %w", err)
	}

	for i, rule := range c.Cache {
		for _, other := range c.Cache[:i] {
			if other.PathPrefix == rule.PathPrefix {
				return fmt.Errorf("cache: duplicate path_prefix %q", rule.PathPrefix)
			}
		}
	}

	return nil
}
