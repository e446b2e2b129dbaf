package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.Equal(t, rl.Allow("user:1"), true)
	assert.Equal(t, rl.Allow("user:1"), true)
	assert.Equal(t, rl.Allow("user:1"), false)
	assert.Equal(t, rl.Allow("user:2"), true)

	now = now.Add(time.Minute)
	assert.Equal(t, rl.Allow("user:1"), true)
	assert.Equal(t, rl.Allow("user:1"), true)
	assert.Equal(t, rl.Allow("user:1"), false)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Second)
	rl.lastCleanup = now
	rl.now = func() time.Time { return now }

	rl.Allow("ip:10.0.0.1")
	assert.Equal(t, len(rl.visitors), 1)

	now = now.Add(2 * time.Minute)
	rl.Allow("ip:10.0.0.2")
	assert.Equal(t, len(rl.visitors), 1)
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/ws", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	hit := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, hit().Code, http.StatusOK)

	now = now.Add(20 * time.Second)
	w := hit()
	assert.Equal(t, w.Code, http.StatusTooManyRequests)
	assert.Equal(t, w.Header().Get("Retry-After"), "40")
}
