// Package ratelimit implements sliding-window admission control.
//
// Two windows are enforced together — a 1-minute and a 1-hour window —
// keyed by a client identifier ("session:<id>" when the caller has a
// session, else "ip:<address>"). Preferring the session id avoids
// punishing NATed clients that share one IP.
//
// The state is advisory, in-process and lost on restart. That's
// acceptable: the limiter mitigates abuse, it is not a correctness
// mechanism. The Limiter interface exists so a multi-process deployment
// could swap in a shared store (e.g. Redis) without touching callers.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default thresholds, overridable via RATE_LIMIT_PER_MINUTE and
// RATE_LIMIT_PER_HOUR.
const (
	DefaultPerMinute = 10
	DefaultPerHour   = 100
)

// Result reports an admission decision with the remaining quota for both
// windows. RetryAfter and Message are only meaningful when Allowed is
// false.
type Result struct {
	Allowed         bool
	MinuteRemaining int
	HourRemaining   int
	RetryAfter      time.Duration
	Message         string
}

// Limiter is the admission-control contract consulted before mutating or
// expensive operations (register, login, chat).
type Limiter interface {
	Allow(ctx context.Context, identifier string) (Result, error)
}

// MemoryLimiter is the single-node in-memory Limiter.
//
// CONCURRENCY:
// Check-then-record happens inside one critical section. Two concurrent
// requests from the same identifier can never both slip past a threshold
// they jointly exceed — the second one sees the first one's timestamp.
type MemoryLimiter struct {
	perMinute int
	perHour   int

	mu     sync.Mutex
	minute map[string][]time.Time
	hour   map[string][]time.Time

	// now is swappable in tests to step through windows without sleeping.
	now func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a MemoryLimiter with the given thresholds
// (defaults when zero or negative).
func NewMemoryLimiter(perMinute, perHour int) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	return &MemoryLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		minute:    make(map[string][]time.Time),
		hour:      make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow checks both windows for the identifier, records the request when
// admitted, and returns the decision. The context is unused by the
// in-memory implementation but kept in the signature for store-backed
// implementations that make network calls.
func (l *MemoryLimiter) Allow(_ context.Context, identifier string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minute[identifier] = prune(l.minute[identifier], now.Add(-time.Minute))
	l.hour[identifier] = prune(l.hour[identifier], now.Add(-time.Hour))

	minuteUsed := len(l.minute[identifier])
	hourUsed := len(l.hour[identifier])

	if minuteUsed >= l.perMinute {
		return Result{
			MinuteRemaining: 0,
			HourRemaining:   max(0, l.perHour-hourUsed),
			RetryAfter:      retryAfter(l.minute[identifier], time.Minute, now),
			Message:         fmt.Sprintf("Rate limit exceeded: %d requests per minute", l.perMinute),
		}, nil
	}

	if hourUsed >= l.perHour {
		return Result{
			MinuteRemaining: l.perMinute - minuteUsed,
			HourRemaining:   0,
			RetryAfter:      retryAfter(l.hour[identifier], time.Hour, now),
			Message:         fmt.Sprintf("Rate limit exceeded: %d requests per hour", l.perHour),
		}, nil
	}

	// Admitted — record in both windows.
	l.minute[identifier] = append(l.minute[identifier], now)
	l.hour[identifier] = append(l.hour[identifier], now)

	return Result{
		Allowed:         true,
		MinuteRemaining: l.perMinute - minuteUsed - 1,
		HourRemaining:   l.perHour - hourUsed - 1,
	}, nil
}

// prune drops timestamps at or before the cutoff. Entries are appended in
// time order, so the first retained index ends the scan.
func prune(bucket []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(bucket) && !bucket[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return bucket
	}
	return append(bucket[:0:0], bucket[i:]...)
}

// retryAfter estimates when the oldest entry ages out of the window,
// rounded up to a whole second so it is usable as a Retry-After header.
func retryAfter(bucket []time.Time, window time.Duration, now time.Time) time.Duration {
	if len(bucket) == 0 {
		return time.Minute
	}
	d := bucket[0].Add(window).Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}
