// Package ratelimit implements the minimum-interval gate described in
// spec §4.1: a callback is allowed through at most once per interval,
// and the very first call always passes.
//
// This is deliberately not built on github.com/juju/ratelimit: that
// package implements a token bucket, which permits bursts above the
// configured rate. Spec §8 (S6) requires the stricter "elapsed since
// last success >= interval" gate, with no burst allowance, so the
// minimal implementation below (grounded in the original Rust
// RateLimit's Cell<Instant> + Duration) is the faithful one.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter gates calls to at most once per interval.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// New returns a Limiter that allows one Check to succeed per interval.
// The first call to Check always succeeds.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		last:     time.Now().Add(-interval),
	}
}

// Check reports whether at least interval has elapsed since the last
// successful Check, updating the internal clock when it returns true.
func (l *Limiter) Check() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}
