package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
)

// Identifier builds the limiter key for a request: the session id when
// the caller supplied one, else the client IP. chi's RealIP middleware
// runs earlier and rewrites RemoteAddr from X-Forwarded-For, so the IP is
// the real client behind a proxy.
func Identifier(r *http.Request, sessionID string) string {
	if sessionID != "" {
		return "session:" + sessionID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// Middleware enforces the limiter per client IP. Applied to the
// unauthenticated mutating endpoints (register, login) — at that point
// there is no session yet, so the IP is all we have.
//
// A limiter-internal error admits the request: availability over
// throttling for an advisory mechanism.
func Middleware(l Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), Identifier(r, ""))
			if err != nil {
				logger.Warn("rate limiter unavailable, admitting request",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				WriteRejection(w, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteRejection sends the 429 response with the retry hint and the
// remaining quota of both windows. Shared by the middleware and by
// handlers that key the limiter on a session id themselves.
func WriteRejection(w http.ResponseWriter, res Result) {
	w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(res.MinuteRemaining))
	w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(res.HourRemaining))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate_limited","message":"` + res.Message + `"}`))
}
