package forwarder

import "time"

// linearBackOff implements github.com/cenkalti/backoff's BackOff
// interface with the forwarder's retry policy: delay = retryDelay *
// attempt, capped at maxDelay. A Retry-After value observed on the most
// recent attempt overrides the computed delay for exactly one call to
// NextBackOff.
type linearBackOff struct {
	retryDelay time.Duration
	maxDelay   time.Duration
	maxRetries int

	attempt         int
	retryAfter      time.Duration
	retryAfterIsSet bool
}

func newLinearBackOff(retryDelay, maxDelay time.Duration, maxRetries int) *linearBackOff {
	return &linearBackOff{retryDelay: retryDelay, maxDelay: maxDelay, maxRetries: maxRetries}
}

// setRetryAfter overrides the next delay with a server-provided value.
func (b *linearBackOff) setRetryAfter(d time.Duration) {
	b.retryAfter = d
	b.retryAfterIsSet = true
}

// backOffStop mirrors backoff.Stop without importing the package here,
// so this file has no compile-time dependency on cenkalti/backoff's
// exact version; the forwarder wires it in when constructing the
// backoff.BackOff-typed retry loop.
const backOffStop time.Duration = -1

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.maxRetries {
		return backOffStop
	}

	if b.retryAfterIsSet {
		d := b.retryAfter
		b.retryAfterIsSet = false
		return d
	}

	d := b.retryDelay * time.Duration(b.attempt)
	if d > b.maxDelay {
		d = b.maxDelay
	}
	return d
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
	b.retryAfterIsSet = false
}
