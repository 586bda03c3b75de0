// Package jobs runs the durable job ledger: claiming due work, dispatching
// it to handlers, and scheduling retries with backoff.
package jobs

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays: exponential growth from Base, capped at
// Max, with a random jitter fraction so retries of concurrent failures
// spread out.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff is the ledger's retry policy.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   30 * time.Second,
		Max:    30 * time.Minute,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Delay returns the wait before the given attempt (1-based) is retried.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt-1))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		// Jitter in [-Jitter, +Jitter] of the delay.
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
