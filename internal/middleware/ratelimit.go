package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robolist/robolist/internal/ctxkeys"
	"github.com/robolist/robolist/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key. A bucket refills at
// requests per window and holds at most requests tokens.
type Limiter struct {
	name   string
	every  rate.Limit
	burst  int
	idle   time.Duration
	keyFor func(*http.Request) string

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewLimiter returns nil when requests is not positive, which disables limiting.
func NewLimiter(name string, requests int, window time.Duration, keyFor func(*http.Request) string) *Limiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{
		name:      name,
		every:     rate.Every(window / time.Duration(requests)),
		burst:     requests,
		idle:      window,
		keyFor:    keyFor,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// AuthLimiter limits credential endpoints per client IP.
func AuthLimiter(requests int, window time.Duration) *Limiter {
	return NewLimiter("auth", requests, window, ClientIP)
}

// WriteLimiter limits mutating endpoints per authenticated user.
func WriteLimiter(requests int, window time.Duration) *Limiter {
	return NewLimiter("write", requests, window, PrincipalKey)
}

func (l *Limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// Wrap rejects requests over the limit with 429. A nil limiter passes
// everything through.
func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFor(r)
		if !l.allow(key, time.Now()) {
			metrics.RateLimitedTotal.WithLabelValues(l.name).Inc()
			slog.Warn("rate limit exceeded", "limiter", l.name, "key", key, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Too many requests.", "Too many requests. Please try again later.")
			return
		}
		next(w, r)
	}
}

// PrincipalKey keys a request by its user, falling back to the client IP.
func PrincipalKey(r *http.Request) string {
	if u := ctxkeys.User(r.Context()); u != nil {
		return "user:" + u.ID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first forwarded address, or the remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
