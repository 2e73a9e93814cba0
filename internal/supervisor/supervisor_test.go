package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"discord-bridge/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Discord.Token = "test-token-0123456789"
	cfg.Routes = []config.Route{
		{EventName: "MESSAGE_CREATE", Enabled: true, Endpoints: []string{"http://127.0.0.1:1/no-such-listener"}},
	}
	return cfg
}

func TestRunReturnsPromptlyOnCanceledContext(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, mustNewLoggerForTest())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on canceled context, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunLogsFinalStatsWithNoRoutesConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Routes = nil
	var buf bytes.Buffer
	s := New(cfg, slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	snap := s.rt.Snapshot()
	if snap.EventsReceived != 0 {
		t.Fatalf("expected no events received, got %d", snap.EventsReceived)
	}
	if !strings.Contains(buf.String(), "final statistics") {
		t.Errorf("expected a final statistics log line, got %q", buf.String())
	}
}

// TestGracePeriodLetsInFlightForwardCompleteAfterShutdownSignal exercises
// the exact sequence Run's shutdown tail performs (cancel the signal
// context, then Drain, then Stop) without going through the Gateway
// client, since that would require a real Discord dial. It confirms a
// forward already in flight when the shutdown signal fires still gets to
// complete during the grace period instead of being aborted immediately.
func TestGracePeriodLetsInFlightForwardCompleteAfterShutdownSignal(t *testing.T) {
	var handled int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&handled, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Routes = []config.Route{
		{EventName: "MESSAGE_CREATE", Enabled: true, Endpoints: []string{srv.URL}},
	}
	s := New(cfg, mustNewLoggerForTest())

	ctx, cancel := context.WithCancel(context.Background())
	s.rt.Start(ctx)
	s.handleDispatch(ctx, "MESSAGE_CREATE", json.RawMessage(`{}`))
	time.Sleep(10 * time.Millisecond) // let the forward goroutine start and dial srv

	// Mirrors the shutdown-signal instant inside Run: cancelling ctx here
	// must not abort the forward already in flight.
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	if err := s.rt.Drain(drainCtx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	s.rt.Stop()

	snap := s.rt.Snapshot()
	if snap.EventsForwarded != 1 {
		t.Errorf("EventsForwarded = %d, want 1 (forward should survive the shutdown signal)", snap.EventsForwarded)
	}
	if atomic.LoadInt32(&handled) != 1 {
		t.Errorf("handler invocations = %d, want 1", handled)
	}
}
