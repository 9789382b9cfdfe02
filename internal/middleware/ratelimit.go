package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/rewear/internal/auth"
)

// RealIP returns the client address. CF-Connecting-IP wins over the first
// X-Forwarded-For hop; header values that are not IP addresses are ignored.
func RealIP(r *http.Request) string {
	if ip := parseIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// window is one fixed counting window for a key.
type window struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets.
func (d Decision) RetryAfter(now time.Time) int {
	return int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
}

// RateLimiter counts requests per key in fixed windows, in memory. Limits are
// per process.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Take counts one request against key and reports whether it fits in limit
// for the current window.
func (rl *RateLimiter) Take(key string, limit int, period time.Duration) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		rl.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed:   w.count <= limit,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.resetAt,
	}
}

// Allow reports whether key is still within limit.
func (rl *RateLimiter) Allow(key string, limit int, period time.Duration) bool {
	return rl.Take(key, limit, period).Allowed
}

// Cleanup drops windows that have already reset.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// ByIP keys requests by client address.
func ByIP(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// ByUser keys requests by the authenticated user, falling back to the client
// address. It must run after RequireAuth.
func ByUser(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return ByIP(r)
}

// RateLimit returns middleware allowing limit requests per period for each
// key. Keys are namespaced by scope so separate limits never share a counter.
// Every response carries X-RateLimit-Limit and X-RateLimit-Remaining; rejected
// ones get 429 with Retry-After.
func RateLimit(limiter *RateLimiter, scope string, keyFunc func(*http.Request) string, limit int, period time.Duration, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Take(scope+":"+keyFunc(r), limit, period)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(limiter.now())))
				writeError(w, http.StatusTooManyRequests, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
