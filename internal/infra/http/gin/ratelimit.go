package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterBurst     = 5
	visitorIdleAfter = 5 * time.Minute
)

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(perMinute int, logger *slog.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    limiterBurst,
		logger:   logger,
		visitors: make(map[string]*visitor),
	}
}

func (l *IPRateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Sweep forgets visitors idle for longer than five minutes.
func (l *IPRateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-visitorIdleAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Run sweeps idle visitors every minute until ctx is done.
func (l *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

func (l *IPRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.limiterFor(ip, time.Now()).Allow() {
			if l.logger != nil {
				l.logger.Warn("rate limit exceeded", "ip", ip, "path", c.FullPath())
			}
			abortWith(c, http.StatusTooManyRequests, codeRateLimited, "too many requests, slow down")
			return
		}
		c.Next()
	}
}
