// Package forwarder POSTs envelopes to configured HTTP endpoints with
// bounded retry, Retry-After awareness, and a per-host circuit breaker.
package forwarder

import (
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// outcome classifies the result of a single HTTP attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomePermanent
)

// classifyStatus maps an HTTP status code to an outcome per the forwarder's
// retry policy: 2xx is success, 408/429/5xx are retryable, every other
// 4xx is a permanent failure (the endpoint rejected the request itself,
// retrying will not help).
func classifyStatus(status int) outcome {
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return outcomeRetryable
	case status >= 500:
		return outcomeRetryable
	case status >= 400:
		return outcomePermanent
	default:
		// 1xx/3xx should not reach here since we don't follow redirects
		// manually and the client doesn't wait on informational
		// responses; treat defensively as retryable.
		return outcomeRetryable
	}
}

// classifyErr maps a network-level error (no response received at all,
// e.g. DNS failure, connection refused, TLS handshake failure, or a
// client-side timeout) to an outcome. These are always retryable: the
// endpoint never got a chance to reject the request on its own merits.
func classifyErr(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	return outcomeRetryable
}

// parseRetryAfter parses the Retry-After header, which may be a number
// of seconds or an HTTP-date, capping the result to maxDelay.
func parseRetryAfter(header string, maxDelay time.Duration) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		d := time.Duration(secs) * time.Second
		if d > maxDelay {
			d = maxDelay
		}
		if d < 0 {
			d = 0
		}
		return d, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		if d > maxDelay {
			d = maxDelay
		}
		return d, true
	}
	return 0, false
}

// hostOf extracts the host used to key the circuit breaker for endpoint.
func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
