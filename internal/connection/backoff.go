package connection

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectBackOff is the Connector's reconnect schedule. The n-th call to
// NextBackOff since the last Reset returns Delay(base, jitter, n-1, r) and,
// once MaxRetries delays have been handed out, backoff.Stop.
//
// Not safe for concurrent use; the Connector guards it with its own lock.
type ReconnectBackOff struct {
	Base       time.Duration
	Jitter     time.Duration
	MaxRetries int

	attempts int
	random   func() float64
}

var _ backoff.BackOff = (*ReconnectBackOff)(nil)

// NewReconnectBackOff creates a schedule drawing jitter from math/rand/v2.
func NewReconnectBackOff(base, jitter time.Duration, maxRetries int) *ReconnectBackOff {
	return &ReconnectBackOff{
		Base:       base,
		Jitter:     jitter,
		MaxRetries: maxRetries,
		random:     rand.Float64,
	}
}

// NextBackOff returns the delay before the next reconnect and counts the attempt.
func (b *ReconnectBackOff) NextBackOff() time.Duration {
	if b.attempts >= b.MaxRetries {
		return backoff.Stop
	}
	d := Delay(b.Base, b.Jitter, b.attempts, b.random())
	b.attempts++
	return d
}

// Reset restores the full retry budget.
func (b *ReconnectBackOff) Reset() {
	b.attempts = 0
}

// Attempts returns the number of reconnects handed out since the last Reset.
func (b *ReconnectBackOff) Attempts() int {
	return b.attempts
}

// Delay computes base*2^attempt plus a jitter of r*jitter - jitter/2, where r
// is uniform in [0, 1). The result is rounded to the millisecond and never negative.
func Delay(base, jitter time.Duration, attempt int, r float64) time.Duration {
	d := float64(base)*math.Pow(2, float64(attempt)) + r*float64(jitter) - float64(jitter)/2
	if d < 0 {
		return 0
	}
	return time.Duration(d).Round(time.Millisecond)
}
