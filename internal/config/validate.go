package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates every problem found in a Config so callers
// can report them all at once instead of failing on the first.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness, returning a
// *ValidationError listing every problem found, or nil.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateDiscord(cfg, ve)
	validateHTTP(cfg, ve)
	validateLogging(cfg, ve)
	validateTracer(cfg, ve)
	validateRoutes(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateDiscord(cfg *Config, ve *ValidationError) {
	if len(cfg.Discord.Token) < 10 {
		ve.Add("discord.token must be at least 10 characters")
	}
	if cfg.Discord.Intents < 0 {
		ve.Add("discord.intents must be >= 0")
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.Timeout <= 0 {
		ve.Add("http.timeout must be > 0")
	}
	if cfg.HTTP.RetryAttempts < 0 {
		ve.Add("http.retry_attempts must be >= 0")
	}
	if cfg.HTTP.RetryDelay < 0 {
		ve.Add("http.retry_delay must be >= 0")
	}
	if cfg.HTTP.MaxConcurrentForwards <= 0 {
		ve.Add("http.max_concurrent_forwards must be > 0")
	}
	if cfg.HTTP.CircuitBreaker.MaxFailures == 0 {
		ve.Add("http.circuit_breaker.max_failures must be > 0")
	}
	if cfg.HTTP.CircuitBreaker.Timeout <= 0 {
		ve.Add("http.circuit_breaker.timeout must be > 0")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warning": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true, "text": true,
}

func validateLogging(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		ve.Add("logging.level %q is not one of debug/info/warning/error", cfg.Logging.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		ve.Add("logging.format %q is not one of json/console", cfg.Logging.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is not one of noop/stdout", cfg.Tracer.Exporter)
	}
}

func validateRoutes(cfg *Config, ve *ValidationError) {
	for i, r := range cfg.Routes {
		if r.EventName == "" {
			ve.Add("routes[%d].event_name must not be empty", i)
		}
		if len(r.Endpoints) == 0 {
			ve.Add("routes[%d].endpoints must have at least one entry", i)
		}
		for j, ep := range r.Endpoints {
			u, err := url.Parse(ep)
			if err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("routes[%d].endpoints[%d] %q is not a valid absolute URL", i, j, ep)
			}
		}
	}
}
