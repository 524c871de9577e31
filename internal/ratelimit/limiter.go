// Package ratelimit implements the per-key sliding-window admission
// policy and the ack-tracked retransmission manager shared by the send
// and receive paths.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limit describes the admission policy for one key namespace: at most Max
// requests within Window. Keys may be source-id-scoped, destination-id-
// scoped, or content-hash-scoped — the limiter treats the key as an
// opaque string; the namespace is part of the caller's contract.
type Limit struct {
	Max    int
	Window time.Duration
}

type window struct {
	limit Limit
	times []time.Time
}

// Limiter is a mutual-exclusion-guarded sliding-window rate limiter keyed
// by an arbitrary string. It is shared across the receive path, the send
// path, and content-announce admission.
type Limiter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	fallback Limit
	windows map[string]*window
}

// NewLimiter returns a Limiter applying fallback to any key without a
// more specific Limit set via SetLimit.
func NewLimiter(clock clockwork.Clock, fallback Limit) *Limiter {
	return &Limiter{
		clock:    clock,
		fallback: fallback,
		windows:  make(map[string]*window),
	}
}

// SetLimit installs a specific policy for key, overriding the fallback.
func (l *Limiter) SetLimit(key string, limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		l.windows[key] = &window{limit: limit}
		return
	}
	w.limit = limit
}

// Check trims key's window to the active period, and, if under the limit,
// admits the request by recording now and returning true. It returns
// false without recording anything if the key is already at its limit.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windowFor(key)
	now := l.clock.Now()
	w.times = trim(w.times, now, w.limit.Window)

	if len(w.times) >= w.limit.Max {
		return false
	}

	w.times = append(w.times, now)
	return true
}

// Record accounts for a request without applying the admission check.
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windowFor(key)
	now := l.clock.Now()
	w.times = trim(w.times, now, w.limit.Window)
	w.times = append(w.times, now)
}

func (l *Limiter) windowFor(key string) *window {
	w, ok := l.windows[key]
	if !ok {
		w = &window{limit: l.fallback}
		l.windows[key] = w
	}
	return w
}

func trim(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append([]time.Time(nil), times[i:]...)
}
