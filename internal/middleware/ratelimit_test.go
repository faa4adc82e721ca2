package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund/internal/domain"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestFixedWindowResetsAndSweeps(t *testing.T) {
	clock := &stepClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	fw := newFixedWindow(2, time.Minute, clock.Now)

	for i := 0; i < 2; i++ {
		ok, _ := fw.allow("ip:1")
		require.True(t, ok)
	}
	clock.Add(20 * time.Second)
	ok, retry := fw.allow("ip:1")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	ok, _ = fw.allow("ip:2")
	assert.True(t, ok, "keys are independent")

	clock.Add(41 * time.Second)
	ok, _ = fw.allow("ip:1")
	assert.True(t, ok, "window resets")

	clock.Add(2 * time.Minute)
	_, _ = fw.allow("ip:3")
	fw.mu.Lock()
	defer fw.mu.Unlock()
	assert.Len(t, fw.windows, 1, "expired windows are swept")
}

func TestRateLimitKeysByCallerThenIP(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(caller *domain.Address) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/1/donations", nil)
		req.RemoteAddr = "198.51.100.1:4000"
		if caller != nil {
			req = req.WithContext(ContextWithCaller(req.Context(), *caller))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call(nil).Code)
	rec := call(nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	alice := domain.Address{0xa1}
	bob := domain.Address{0xb0}
	assert.Equal(t, http.StatusNoContent, call(&alice).Code)
	assert.Equal(t, http.StatusNoContent, call(&bob).Code)
	assert.Equal(t, http.StatusTooManyRequests, call(&alice).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, time.Minute)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
