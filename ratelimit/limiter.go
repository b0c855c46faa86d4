// Package ratelimit bounds outbound request rate over a sliding time window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/solvik/fetchq/errors"
)

// minRetryWait guards against busy-looping when the computed wait rounds
// down to zero under clock adjustment.
const minRetryWait = 10 * time.Millisecond

// Limiter enforces max calls per sliding time window. Acquire blocks until
// capacity is available; it has no failure mode besides context cancellation.
// The timestamp window is internal state, mutated only under the limiter's
// own lock.
type Limiter struct {
	maxCalls int
	window   time.Duration
	mu       sync.Mutex
	stamps   []time.Time
	timeNow  func() time.Time // Injectable for testing
}

// NewLimiter creates a rate limiter allowing maxCalls per window.
func NewLimiter(maxCalls int, window time.Duration) *Limiter {
	return NewLimiterWithClock(maxCalls, window, time.Now)
}

// NewLimiterWithClock creates a rate limiter with an injectable clock (for testing).
func NewLimiterWithClock(maxCalls int, window time.Duration, timeNow func() time.Time) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		stamps:   make([]time.Time, 0, maxCalls),
		timeNow:  timeNow,
	}
}

// Acquire blocks until issuing one more call would not exceed the limit,
// then records the call and returns. Admission order across concurrent
// callers is not guaranteed; only the rate bound is.
//
// The check-and-record sequence is a single critical section: after a
// sleep every caller re-checks the window, so two callers can never both
// pass on the same freed slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.timeNow()
		l.evictExpired(now)
		if len(l.stamps) < l.maxCalls {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		// Window full: wait until the oldest entry ages out, then retry.
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait < minRetryWait {
			wait = minRetryWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "rate limit wait cancelled")
		case <-timer.C:
		}
	}
}

// Allow is the non-blocking variant: it records the call if capacity is
// available and returns an error otherwise.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	l.evictExpired(now)

	if len(l.stamps) >= l.maxCalls {
		return errors.Newf("rate limit exceeded: %d calls in window (limit: %d)",
			len(l.stamps), l.maxCalls)
	}

	l.stamps = append(l.stamps, now)
	return nil
}

// evictExpired removes timestamps outside the sliding window.
// Must be called with lock held.
func (l *Limiter) evictExpired(now time.Time) {
	cutoff := now.Add(-l.window)

	// Timestamps are ordered, count expired entries from the front
	expired := 0
	for _, ts := range l.stamps {
		if !ts.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	l.stamps = l.stamps[expired:]
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() (callsInWindow int, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictExpired(l.timeNow())

	callsInWindow = len(l.stamps)
	remaining = l.maxCalls - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}

// Reset clears the limiter state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stamps = l.stamps[:0]
}
