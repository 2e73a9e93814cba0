package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sony/gobreaker/v2"

	"discord-bridge/internal/config"
)

// breakerRegistry lazily creates one circuit breaker per destination
// host, so a single dead sink trips independently of the others.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
	cfg      config.CircuitBreakerConfig
	logger   *slog.Logger
}

func newBreakerRegistry(cfg config.CircuitBreakerConfig, logger *slog.Logger) *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *breakerRegistry) get(host string) *gobreaker.CircuitBreaker[*http.Response] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "forwarder:" + host,
		MaxRequests: 1,
		Interval:    r.cfg.Interval,
		Timeout:     r.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("forwarder circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	r.breakers[host] = cb
	return cb
}

// execute runs fn through the breaker for endpoint's host, translating an
// open breaker into a retryable-shaped error the caller treats the same
// as any other transient failure (it will simply keep failing fast until
// the breaker half-opens again). fn is expected to return a non-nil error
// for any outcome that should count as a breaker failure, including a
// non-nil *http.Response for a retryable/permanent HTTP status, so a sink
// that answers every request with 5xx trips the breaker exactly like one
// that refuses the connection outright.
func (r *breakerRegistry) execute(ctx context.Context, endpoint string, fn func(context.Context) (*http.Response, error)) (*http.Response, error) {
	cb := r.get(hostOf(endpoint))
	resp, err := cb.Execute(func() (*http.Response, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("circuit open for %s: %w", hostOf(endpoint), err)
		}
		return resp, err
	}
	return resp, nil
}
