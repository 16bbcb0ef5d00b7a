package remote

import (
	"errors"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures the HTTP client for the remote store.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1. Required.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Timeout bounds every request. Zero means no client-side timeout.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`

	// Burst is the limiter bucket size. Defaults to 1 when RateLimit is set.
	Burst int `mapstructure:"burst" yaml:"burst"`

	UserAgent string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers   map[string]string `mapstructure:"headers" yaml:"headers"`
}

// DefaultConfig returns a Config with defaults for everything but BaseURL.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "go-refcache",
	}
}

// Validate checks the configuration. The error is a validation.Errors keyed by field name.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(validateBaseURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

func validateBaseURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}
