package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// ipGate is the slice of the store the limiter needs. The Postgres
// Repository satisfies it; tests supply an in-memory gate.
type ipGate interface {
	AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error)
}

// LoginRateLimiter applies a store-backed fixed-window budget per client IP
// in front of the credential endpoints. It complements, not replaces, the
// per-account lockout guard.
type LoginRateLimiter struct {
	gate    ipGate
	maxHits int
	window  time.Duration
}

func NewLoginRateLimiter(gate ipGate, maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		gate:    gate,
		maxHits: maxHits,
		window:  window,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		now := time.Now().UTC()

		allowed, retryAfter, err := l.gate.AllowLoginIP(r.Context(), ip, l.maxHits, l.window, now)
		if err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "internal_error", "request failed")
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
