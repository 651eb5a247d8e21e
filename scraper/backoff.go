package scraper

import (
	"math/rand"
	"time"
)

// jitterSource abstracts randomness so tests can pin delays.
type jitterSource interface {
	Int63n(n int64) int64
}

type defaultJitter struct{}

func (defaultJitter) Int63n(n int64) int64 {
	return rand.Int63n(n)
}

// Backoff is the retry delay policy: exponential growth from Base capped at
// Max, jittered over the upper half of the window so concurrent retries
// spread out.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter jitterSource
}

// NewBackoff returns the policy used between retry attempts.
func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{Base: base, Max: max, Jitter: defaultJitter{}}
}

// Delay returns the wait before retry number attempt (1-based). A nil
// Jitter yields the full deterministic delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}

	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base << uint(attempt-1)
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if b.Jitter == nil {
		return delay
	}

	half := int64(delay / 2)
	if half <= 0 {
		return delay
	}
	return time.Duration(half + b.Jitter.Int63n(half+1))
}
