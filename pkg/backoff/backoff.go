// Package backoff computes retry delays for deferred work.
package backoff

import (
	"math"
	"time"
)

// Strategy returns how long to wait before the next attempt, given how many attempts
// have already been made.
type Strategy interface {
	Delay(attempts int) time.Duration
}

// Exponential doubles the delay with every recorded attempt.
// Delay = min(Base * 2^attempts, Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^attempts capped at Max. Negative attempts are treated as zero.
func (e *Exponential) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	base := e.Base
	if base <= 0 {
		base = time.Second
	}

	d := float64(base) * math.Pow(2, float64(attempts))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Constant always returns the same interval.
type Constant struct {
	Interval time.Duration
}

// Delay returns the fixed interval.
func (c Constant) Delay(int) time.Duration {
	return c.Interval
}
