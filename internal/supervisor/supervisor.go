// Package supervisor wires configuration, logging, tracing, the HTTP
// forwarder, the event router and the Gateway client into one runnable
// process, and owns the graceful shutdown sequence.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"discord-bridge/internal/config"
	"discord-bridge/internal/forwarder"
	"discord-bridge/internal/gateway"
	"discord-bridge/internal/logger"
	"discord-bridge/internal/router"
	"discord-bridge/internal/tracer"
)

// drainGracePeriod bounds how long Run waits for in-flight forwards to
// finish after the Gateway connection has been torn down.
const drainGracePeriod = 10 * time.Second

// Supervisor owns the lifecycle of every long-running component.
type Supervisor struct {
	cfg    *config.Config
	log    *slog.Logger
	fwd    *forwarder.Forwarder
	rt     *router.Router
	client *gateway.Client
}

// New builds a Supervisor from a loaded, validated configuration and an
// already-constructed logger. Tracer setup happens separately in Run
// since it needs a context and returns a shutdown func the caller owns.
func New(cfg *config.Config, log *slog.Logger) *Supervisor {
	table := router.NewRouteTable(cfg.Routes)
	fwd := forwarder.New(cfg.HTTP, log)
	rt := router.New(table, fwd, cfg.HTTP.MaxConcurrentForwards, log)

	s := &Supervisor{cfg: cfg, log: log, fwd: fwd, rt: rt}
	s.client = gateway.NewClient(cfg.Discord.Token, cfg.Discord.Intents, s.handleDispatch, log)
	return s
}

func (s *Supervisor) handleDispatch(_ context.Context, eventType string, data json.RawMessage) {
	s.rt.Dispatch(eventType, data)
}

// Run starts tracing, the router and the Gateway client, then blocks
// until ctx is canceled (typically by a signal.NotifyContext caller).
// On return every in-flight forward has either completed or been
// abandoned at drainGracePeriod, and a final stats snapshot has been
// logged.
func (s *Supervisor) Run(ctx context.Context) error {
	shutdownTracer, err := tracer.Setup(ctx, s.cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			s.log.Warn("tracer shutdown error", "error", err)
		}
	}()

	if len(s.cfg.Routes) == 0 {
		s.log.Warn("no event routes configured - events will be received but not forwarded")
	} else {
		enabled := 0
		for _, r := range s.cfg.Routes {
			if r.Enabled {
				enabled++
				s.log.Info("route enabled", "event", r.EventName, "endpoints", len(r.Endpoints))
			}
		}
		s.log.Info("routes configured", "total", len(s.cfg.Routes), "enabled", enabled)
	}

	s.rt.Start(ctx)

	s.log.Info("discord bridge starting", "intents", s.cfg.Discord.Intents)

	runErr := s.client.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		s.log.Error("gateway client stopped unexpectedly", "error", runErr)
	}

	// Deliberately do not call s.rt.Stop() yet: in-flight forwards run
	// under a context detached from ctx's own cancellation (see
	// router.Router.Start), so they get the full grace period below to
	// complete on their own before anything aborts them.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainGracePeriod)
	defer cancel()
	if err := s.rt.Drain(drainCtx); err != nil {
		s.log.Warn("router drain did not complete before deadline; aborting stragglers", "error", err)
	}
	s.rt.Stop()

	snap := s.rt.Snapshot()
	s.log.Info("final statistics",
		"events_received", snap.EventsReceived,
		"events_forwarded", snap.EventsForwarded,
		"events_failed", snap.EventsFailed,
		"routes_processed", snap.RoutesProcessed,
	)
	s.log.Info("discord bridge stopped")

	if ctx.Err() != nil {
		return nil
	}
	return runErr
}

// mustNewLoggerForTest is only used by tests in this package that need
// a throwaway logger without pulling in the full config.Load machinery.
func mustNewLoggerForTest() *slog.Logger {
	log, _, err := logger.New(config.LoggerConfig{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		panic(err)
	}
	return log
}
