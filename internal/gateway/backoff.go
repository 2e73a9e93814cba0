package gateway

import (
	"math"
	"math/rand"
	"time"
)

// fullJitterBackOff implements github.com/cenkalti/backoff's BackOff
// interface with the "full jitter" formula: delay = uniform(0,
// min(cap, base*2^attempt)). It never reports Stop; the Gateway Client
// retries indefinitely until its context is cancelled or a fatal close
// code is observed.
type fullJitterBackOff struct {
	base    time.Duration
	cap     time.Duration
	attempt int
}

func newFullJitterBackOff(base, cap time.Duration) *fullJitterBackOff {
	return &fullJitterBackOff{base: base, cap: cap}
}

// NextBackOff returns the next delay and advances the attempt counter.
func (b *fullJitterBackOff) NextBackOff() time.Duration {
	upper := float64(b.base) * math.Pow(2, float64(b.attempt))
	if upper > float64(b.cap) {
		upper = float64(b.cap)
	}
	b.attempt++
	if upper <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(upper) + 1))
}

// Reset zeroes the attempt counter, called after a successful connection
// holds long enough to be considered stable.
func (b *fullJitterBackOff) Reset() {
	b.attempt = 0
}
