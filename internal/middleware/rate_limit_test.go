package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimited(rl *RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func loginRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	h := rateLimited(rl)

	codes := make([]int, 3)
	for i := range codes {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, loginRequest("192.168.1.1:1234"))
		codes[i] = rr.Code
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_RejectionBody(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	h := rateLimited(rl)

	h.ServeHTTP(httptest.NewRecorder(), loginRequest("10.0.0.1:1"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, loginRequest("10.0.0.1:1"))

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
}

func TestRateLimiter_KeysByHostNotPort(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	h := rateLimited(rl)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, loginRequest("192.168.1.1:1000"))
	assert.Equal(t, http.StatusOK, rr.Code)

	// a new source port is the same client
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, loginRequest("192.168.1.1:2000"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, loginRequest("192.168.1.2:1000"))
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, 2, rl.Len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"ipv4_with_port", "203.0.113.9:5555", "203.0.113.9"},
		{"ipv6_with_port", "[2001:db8::1]:443", "2001:db8::1"},
		{"bare_host", "203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestRateLimiter_CleanupDropsIdleLimiters(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("stale")

	now = now.Add(limiterTTL / 2)
	rl.getLimiter("fresh")

	now = now.Add(limiterTTL/2 + time.Second)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "stale")
	assert.Contains(t, rl.limiters, "fresh")
}

func TestRateLimiter_CleanupEvictsLeastRecentlyUsed(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	base := time.Now()
	tick := 0
	rl.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	for i := 0; i < maxLimiters+10; i++ {
		rl.getLimiter(fmt.Sprintf("client-%d", i))
	}
	rl.cleanup()

	assert.Equal(t, maxLimiters/2, rl.Len())
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "client-0")
	assert.Contains(t, rl.limiters, fmt.Sprintf("client-%d", maxLimiters+9))
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(1000, 1000)
	defer rl.Stop()
	h := rateLimited(rl)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), loginRequest(fmt.Sprintf("10.0.0.%d:80", i%5)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, rl.Len())
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
