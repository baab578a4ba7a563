package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// newTestLimiter returns a limiter with a controllable clock. Advance the
// returned *time.Time to move through windows without sleeping.
func newTestLimiter(perMinute, perHour int) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter(perMinute, perHour)
	clock := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

// =========================================================================
// WINDOW THRESHOLD TESTS
// =========================================================================

func TestAllow_UnderMinuteLimit(t *testing.T) {
	l, _ := newTestLimiter(3, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "session:abc")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be admitted", i+1)
	}
}

func TestAllow_MinuteLimitExceeded(t *testing.T) {
	l, _ := newTestLimiter(3, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "session:abc")
		require.NoError(t, err)
	}

	res, err := l.Allow(ctx, "session:abc")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.MinuteRemaining)
	assert.Equal(t, "Rate limit exceeded: 3 requests per minute", res.Message)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestAllow_HourLimitExceeded(t *testing.T) {
	// Minute limit high enough that only the hourly cap bites
	l, clock := newTestLimiter(100, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		// Spread requests out so the minute window stays near-empty
		*clock = clock.Add(2 * time.Minute)
	}

	res, err := l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.HourRemaining)
	assert.Equal(t, "Rate limit exceeded: 5 requests per hour", res.Message)
}

func TestAllow_MinuteWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, 100)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "session:abc")
	_, _ = l.Allow(ctx, "session:abc")

	res, _ := l.Allow(ctx, "session:abc")
	require.False(t, res.Allowed, "third request within the minute must be rejected")

	// Once the first request ages past the window, capacity frees up
	*clock = clock.Add(61 * time.Second)
	res, err := l.Allow(ctx, "session:abc")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "request after the window slid should be admitted")
}

func TestAllow_RejectionDoesNotConsumeQuota(t *testing.T) {
	l, clock := newTestLimiter(2, 100)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "session:abc")
	_, _ = l.Allow(ctx, "session:abc")

	// Hammering while rejected must not push the recovery point out
	for i := 0; i < 10; i++ {
		res, _ := l.Allow(ctx, "session:abc")
		require.False(t, res.Allowed)
	}

	*clock = clock.Add(61 * time.Second)
	res, _ := l.Allow(ctx, "session:abc")
	assert.True(t, res.Allowed)
}

func TestAllow_IdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 100)
	ctx := context.Background()

	res, _ := l.Allow(ctx, "session:aaa")
	require.True(t, res.Allowed)

	res, _ = l.Allow(ctx, "session:aaa")
	require.False(t, res.Allowed, "second request for the same identifier")

	res, _ = l.Allow(ctx, "session:bbb")
	assert.True(t, res.Allowed, "a different identifier has its own windows")

	res, _ = l.Allow(ctx, "ip:10.0.0.1")
	assert.True(t, res.Allowed)
}

func TestAllow_RemainingCounts(t *testing.T) {
	l, _ := newTestLimiter(10, 100)
	ctx := context.Background()

	res, err := l.Allow(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, 9, res.MinuteRemaining)
	assert.Equal(t, 99, res.HourRemaining)

	res, _ = l.Allow(ctx, "session:abc")
	assert.Equal(t, 8, res.MinuteRemaining)
	assert.Equal(t, 98, res.HourRemaining)
}

func TestNewMemoryLimiter_ZeroUsesDefaults(t *testing.T) {
	l := NewMemoryLimiter(0, 0)
	assert.Equal(t, DefaultPerMinute, l.perMinute)
	assert.Equal(t, DefaultPerHour, l.perHour)
}

// =========================================================================
// CONCURRENCY TESTS
// =========================================================================

func TestAllow_ConcurrentRequestsNeverExceedLimit(t *testing.T) {
	const limit = 10
	l, _ := newTestLimiter(limit, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	// 50 goroutines racing on one identifier: exactly `limit` may pass
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, "session:race")
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted, "check-then-record must be atomic")
}

// =========================================================================
// IDENTIFIER TESTS
// =========================================================================

func TestIdentifier_PrefersSession(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	r.RemoteAddr = "192.0.2.1:54321"

	assert.Equal(t, "session:sess-1", Identifier(r, "sess-1"))
}

func TestIdentifier_FallsBackToIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	r.RemoteAddr = "192.0.2.1:54321"

	assert.Equal(t, "ip:192.0.2.1", Identifier(r, ""))
}

func TestIdentifier_RemoteAddrWithoutPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	r.RemoteAddr = "192.0.2.1"

	assert.Equal(t, "ip:192.0.2.1", Identifier(r, ""))
}

// =========================================================================
// REJECTION RESPONSE TESTS
// =========================================================================

func TestWriteRejection_HeadersAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRejection(rec, Result{
		MinuteRemaining: 0,
		HourRemaining:   42,
		RetryAfter:      30 * time.Second,
		Message:         "Rate limit exceeded: 10 requests per minute",
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining-Minute"))
	assert.Equal(t, "42", rec.Header().Get("X-RateLimit-Remaining-Hour"))
	assert.JSONEq(t,
		`{"error":"rate_limited","message":"Rate limit exceeded: 10 requests per minute"}`,
		rec.Body.String(),
	)
}

// =========================================================================
// MIDDLEWARE TESTS
// =========================================================================

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, fmt.Errorf("store unavailable")
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	l, _ := newTestLimiter(1, 100)
	h := Middleware(l, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_LimiterErrorAdmits(t *testing.T) {
	// Advisory mechanism: a broken limiter must not take logins down
	h := Middleware(erroringLimiter{}, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
