package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, applies environment overrides, and
// validates the result. A missing file is not an error: defaults plus
// environment overrides are validated and returned instead, matching
// the original tool's from_env() fallback.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes the http section, accepting http.timeout and
// http.retry_delay as a bare number of seconds (10, 1.5) as well as a Go
// duration string ("10s").
func (h *HTTPConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i].Value, value.Content[i+1]
			if (key == "timeout" || key == "retry_delay") && (val.ShortTag() == "!!int" || val.ShortTag() == "!!float") {
				val.Value += "s"
				val.Tag = "!!str"
			}
		}
	}
	type plain HTTPConfig
	return value.Decode((*plain)(h))
}

// ApplyEnvOverrides maps environment variables onto cfg. Both the bare
// names the original tool recognizes and BRIDGE_-prefixed names are
// accepted; when both are set for the same field the bare name wins,
// since external callers already depend on it.
func ApplyEnvOverrides(cfg *Config) {
	applyStr(&cfg.Discord.Token, "BRIDGE_DISCORD_TOKEN", "DISCORD_TOKEN")
	applyInt(&cfg.Discord.Intents, "BRIDGE_DISCORD_INTENTS", "DISCORD_INTENTS")

	applyDuration(&cfg.HTTP.Timeout, "BRIDGE_HTTP_TIMEOUT", "HTTP_TIMEOUT")
	applyInt(&cfg.HTTP.RetryAttempts, "BRIDGE_HTTP_RETRY_ATTEMPTS", "HTTP_RETRY_ATTEMPTS")
	applyDuration(&cfg.HTTP.RetryDelay, "BRIDGE_HTTP_RETRY_DELAY", "HTTP_RETRY_DELAY")

	applyStr(&cfg.Logging.Level, "BRIDGE_LOG_LEVEL", "LOG_LEVEL")
	applyStr(&cfg.Logging.Format, "BRIDGE_LOG_FORMAT", "LOG_FORMAT")
}

func applyStr(dst *string, prefixed, bare string) {
	if v := os.Getenv(prefixed); v != "" {
		*dst = v
	}
	if v := os.Getenv(bare); v != "" {
		*dst = v
	}
}

func applyInt(dst *int, prefixed, bare string) {
	if v := os.Getenv(prefixed); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
	if v := os.Getenv(bare); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyDuration(dst *time.Duration, prefixed, bare string) {
	// HTTP_TIMEOUT / HTTP_RETRY_DELAY are documented as bare seconds,
	// matching the original tool's pydantic `int` fields.
	if v := os.Getenv(prefixed); v != "" {
		if d, err := parseSecondsOrDuration(v); err == nil {
			*dst = d
		}
	}
	if v := os.Getenv(bare); v != "" {
		if d, err := parseSecondsOrDuration(v); err == nil {
			*dst = d
		}
	}
}

func parseSecondsOrDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// validatePermissions checks the config file has restrictive permissions,
// since it may carry a Discord bot token.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o033 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
