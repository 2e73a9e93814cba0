package main

import "testing"

func TestParseFlagsDefaults(t *testing.T) {
	flags := parseFlags([]string{"bridge"})
	if flags.ConfigPath != "config.yaml" {
		t.Fatalf("expected default config path, got %q", flags.ConfigPath)
	}
	if flags.Token != "" || flags.LogLevel != "" {
		t.Fatalf("expected no token/log-level overrides, got %+v", flags)
	}
}

func TestParseFlagsSpaceSeparated(t *testing.T) {
	flags := parseFlags([]string{"bridge", "--config", "/etc/bridge/config.yaml", "--token", "abc", "--log-level", "debug"})
	if flags.ConfigPath != "/etc/bridge/config.yaml" {
		t.Fatalf("unexpected config path: %q", flags.ConfigPath)
	}
	if flags.Token != "abc" {
		t.Fatalf("unexpected token: %q", flags.Token)
	}
	if flags.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %q", flags.LogLevel)
	}
}

func TestParseFlagsEqualsForm(t *testing.T) {
	flags := parseFlags([]string{"bridge", "--config=./local.yaml", "--log-level=warn"})
	if flags.ConfigPath != "./local.yaml" {
		t.Fatalf("unexpected config path: %q", flags.ConfigPath)
	}
	if flags.LogLevel != "warn" {
		t.Fatalf("unexpected log level: %q", flags.LogLevel)
	}
}
