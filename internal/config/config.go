// Package config loads and validates the bridge's configuration: the
// Discord credentials, the HTTP forwarder's client and retry settings,
// logging, tracing, and the event routing table.
package config

import (
	"time"
)

// DiscordConfig holds Gateway connection settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	Intents int    `yaml:"intents"`
}

// CircuitBreakerConfig configures the per-destination-host breaker in
// front of the HTTP forwarder.
type CircuitBreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// HTTPConfig holds forwarding client and retry settings.
type HTTPConfig struct {
	Timeout               time.Duration        `yaml:"timeout"`
	RetryAttempts         int                  `yaml:"retry_attempts"`
	RetryDelay            time.Duration        `yaml:"retry_delay"`
	MaxConcurrentForwards int                  `yaml:"max_concurrent_forwards"`
	CircuitBreaker        CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Route maps one Discord Gateway event name to a set of forwarding
// endpoints.
type Route struct {
	EventName string   `yaml:"event_name"`
	Enabled   bool     `yaml:"enabled"`
	Endpoints []string `yaml:"endpoints"`
}

// Config is the top-level bridge configuration.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggerConfig  `yaml:"logging"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Routes  []Route       `yaml:"routes"`
}

// RoutesForEvent returns the enabled routes matching eventName.
func (c *Config) RoutesForEvent(eventName string) []Route {
	var matched []Route
	for _, r := range c.Routes {
		if r.Enabled && r.EventName == eventName {
			matched = append(matched, r)
		}
	}
	return matched
}

// Defaults returns a Config with sensible defaults, mirroring the
// original tool's dataclass defaults.
func Defaults() *Config {
	return &Config{
		Discord: DiscordConfig{
			Intents: 513,
		},
		HTTP: HTTPConfig{
			Timeout:               30 * time.Second,
			RetryAttempts:         3,
			RetryDelay:            1 * time.Second,
			MaxConcurrentForwards: 100,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Logging: LoggerConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}
