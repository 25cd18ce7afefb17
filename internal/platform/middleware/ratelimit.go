package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter applies a per-caller sliding window over request timestamps.
// Boundary-aligned bursts cannot double the effective rate the way a fixed
// window would allow.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Allow records one request for key and reports whether it fits the window.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	timestamps := l.windows[key]
	i := 0
	for ; i < len(timestamps); i++ {
		if timestamps[i].After(cutoff) {
			break
		}
	}
	timestamps = timestamps[i:]

	if len(timestamps) >= l.limit {
		l.windows[key] = timestamps
		return false
	}

	l.windows[key] = append(timestamps, now)
	return true
}

// RateLimit rejects callers exceeding the limiter with 429. The caller key is
// the authenticated account when present, the remote address otherwise.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := string(GetAccountID(r.Context()))
			if key == "" {
				key = r.RemoteAddr
			}
			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"Too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
