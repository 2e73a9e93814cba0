// Command bridge runs the Discord Gateway to HTTP bridge: it maintains a
// single Gateway session, decodes dispatch events and forwards them as
// JSON envelopes to the HTTP endpoints configured for each event type.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"discord-bridge/internal/config"
	"discord-bridge/internal/logger"
	"discord-bridge/internal/supervisor"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "-h", "--help", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`discord-bridge - Discord Gateway to HTTP bridge

USAGE:
    bridge [FLAGS]

FLAGS:
    -h, --help          Show this help message
    --config PATH       Path to configuration YAML file (default: ./config.yaml)
    --token TOKEN       Discord bot token (overrides config file and environment)
    --log-level LEVEL   Log level: debug, info, warn, error (overrides config file)

CONFIGURATION:
    Config file: ./config.yaml, or the path given by --config
    Environment: BRIDGE_* variables override the config file; bare names
                 (DISCORD_TOKEN, HTTP_TIMEOUT, ...) win over both`)
}

type cliFlags struct {
	ConfigPath string
	Token      string
	LogLevel   string
}

func parseFlags(args []string) cliFlags {
	flags := cliFlags{ConfigPath: "config.yaml"}
	for i := 1; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			flags.ConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--token" && i+1 < len(args):
			flags.Token = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--token="):
			flags.Token = strings.TrimPrefix(args[i], "--token=")
		case args[i] == "--log-level" && i+1 < len(args):
			flags.LogLevel = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--log-level="):
			flags.LogLevel = strings.TrimPrefix(args[i], "--log-level=")
		}
	}
	return flags
}

func run() error {
	flags := parseFlags(os.Args)

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if flags.Token != "" {
		cfg.Discord.Token = flags.Token
	}
	if flags.LogLevel != "" {
		cfg.Logging.Level = flags.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New(cfg, log)
	return sup.Run(ctx)
}
