package ginserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
)

func TestIPRateLimiterRejectsAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(1, nil)
	router := gin.New()
	router.GET("/ping", limiter.Handler(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":4000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < limiterBurst; i++ {
		if code := call("10.0.0.1"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := call("10.0.0.2"); code != http.StatusNoContent {
		t.Fatalf("expected other ip unaffected, got %d", code)
	}
}

func TestIPRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := NewIPRateLimiter(60, nil)
	start := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	limiter.limiterFor("10.0.0.1", start)
	limiter.limiterFor("10.0.0.2", start.Add(4*time.Minute))

	if removed := limiter.Sweep(start.Add(6 * time.Minute)); removed != 1 {
		t.Fatalf("expected 1 idle visitor removed, got %d", removed)
	}
	if _, ok := limiter.visitors["10.0.0.2"]; !ok {
		t.Fatalf("expected recent visitor kept")
	}
}
