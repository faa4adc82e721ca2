package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// fixedWindow counts requests per key in fixed windows of length per.
type fixedWindow struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

type window struct {
	count int
	ends  time.Time
}

func newFixedWindow(limit int, per time.Duration, now func() time.Time) *fixedWindow {
	return &fixedWindow{
		limit:     limit,
		per:       per,
		now:       now,
		windows:   make(map[string]*window),
		lastSweep: now(),
	}
}

// allow records one request for key. When the window is full it returns
// false and the time until the window resets.
func (f *fixedWindow) allow(key string) (bool, time.Duration) {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Sub(f.lastSweep) > f.per {
		for k, w := range f.windows {
			if !now.Before(w.ends) {
				delete(f.windows, k)
			}
		}
		f.lastSweep = now
	}

	w, ok := f.windows[key]
	if !ok || !now.Before(w.ends) {
		w = &window{ends: now.Add(f.per)}
		f.windows[key] = w
	}
	if w.count >= f.limit {
		return false, w.ends.Sub(now)
	}
	w.count++
	return true, 0
}

// RateLimit allows limit requests per window for each client. Mounted after
// AuthJWT the key is the caller address; elsewhere it is the client IP. A
// non-positive limit disables the check.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	fw := newFixedWindow(limit, per, time.Now)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := fw.allow(rateLimitKey(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests","kind":"resource"}}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if caller, ok := CallerFromContext(r.Context()); ok {
		return "caller:" + caller.Hex()
	}
	return "ip:" + ClientIP(r)
}
