package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"discord-bridge/internal/bridgeerr"
	"discord-bridge/internal/config"
	"discord-bridge/internal/tracer"
)

const (
	userAgent       = "discord-bridge/1.0"
	maxForwardDelay = 60 * time.Second
)

// Forwarder POSTs envelope bodies to configured endpoints. Each call to
// Forward retries transient failures with a linear backoff honoring any
// Retry-After header, and routes through a per-destination-host circuit
// breaker so a completely dead endpoint fails fast instead of eating the
// full retry budget on every event.
type Forwarder struct {
	client        *http.Client
	breakers      *breakerRegistry
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// New builds a Forwarder from configuration.
func New(cfg config.HTTPConfig, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:        newHTTPClient(cfg.Timeout),
		breakers:      newBreakerRegistry(cfg.CircuitBreaker, logger),
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        logger,
	}
}

// Forward implements router.Forwarder. It returns nil on any 2xx
// response, and a non-nil error (wrapping bridgeerr.ErrForwardPermanent
// or bridgeerr.ErrForwardTransient) once retries are exhausted or a
// permanent failure is observed.
func (f *Forwarder) Forward(ctx context.Context, endpoint, deliveryID string, body []byte) error {
	ctx, span := tracer.StartSpan(ctx, "forwarder.forward")
	span.SetAttributes(tracer.StringAttr("endpoint", endpoint), tracer.StringAttr("delivery_id", deliveryID))
	defer span.End()

	lb := newLinearBackOff(f.retryDelay, maxForwardDelay, f.retryAttempts)
	attempt := 0

	op := func() error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("X-Delivery-Id", deliveryID)

		// The inner fn turns a retryable/permanent HTTP status into an
		// error too, so the circuit breaker sees a sink that always
		// answers 5xx as failing just like one that refuses to connect.
		resp, execErr := f.breakers.execute(ctx, endpoint, func(ctx context.Context) (*http.Response, error) {
			resp, err := f.client.Do(req)
			if err != nil {
				return nil, err
			}
			if classifyStatus(resp.StatusCode) != outcomeSuccess {
				return resp, fmt.Errorf("status %d", resp.StatusCode)
			}
			return resp, nil
		})

		if resp == nil {
			var wrapped *bridgeerr.BridgeError
			switch classifyErr(execErr) {
			case outcomePermanent:
				wrapped = bridgeerr.New("forwarder.Forward", bridgeerr.ErrForwardPermanent, execErr.Error())
				f.logger.Warn("forward attempt permanent", "endpoint", endpoint, "attempt", attempt,
					"error", execErr, "error_kind", bridgeerr.CodeOf(wrapped))
				return backoff.Permanent(wrapped)
			default:
				wrapped = bridgeerr.New("forwarder.Forward", bridgeerr.ErrForwardTransient, execErr.Error())
				f.logger.Warn("forward attempt failed", "endpoint", endpoint, "attempt", attempt,
					"error", execErr, "error_kind", bridgeerr.CodeOf(wrapped))
				return wrapped
			}
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		switch classifyStatus(resp.StatusCode) {
		case outcomeSuccess:
			return nil
		case outcomeRetryable:
			if resp.StatusCode == http.StatusTooManyRequests {
				if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), maxForwardDelay); ok {
					lb.setRetryAfter(d)
				}
			}
			wrapped := bridgeerr.New("forwarder.Forward", bridgeerr.ErrForwardTransient, fmt.Sprintf("status %d", resp.StatusCode))
			f.logger.Warn("forward attempt retryable", "endpoint", endpoint, "attempt", attempt,
				"status", resp.StatusCode, "error_kind", bridgeerr.CodeOf(wrapped))
			return wrapped
		default:
			wrapped := bridgeerr.New("forwarder.Forward", bridgeerr.ErrForwardPermanent, fmt.Sprintf("status %d", resp.StatusCode))
			f.logger.Warn("forward attempt permanent", "endpoint", endpoint, "attempt", attempt,
				"status", resp.StatusCode, "error_kind", bridgeerr.CodeOf(wrapped))
			return backoff.Permanent(wrapped)
		}
	}

	err := backoff.Retry(op, lb)
	if err != nil {
		tracer.RecordError(span, err)
		f.logger.Error("forward exhausted retries", "endpoint", endpoint, "delivery_id", deliveryID,
			"attempts", attempt, "error", err, "error_kind", bridgeerr.CodeOf(err), "retryable", bridgeerr.IsRetryable(err))
		return err
	}
	tracer.SetOK(span)
	return nil
}
