package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP. Buckets of clients
// that go quiet for idle are evicted.
type IPRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
	idle     time.Duration
}

// NewIPRateLimiter creates a limiter allowing r requests per second with burst b.
func NewIPRateLimiter(r rate.Limit, b int, idle time.Duration) *IPRateLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &IPRateLimiter{
		limiters: cache.New(idle, idle),
		r:        r,
		b:        b,
		idle:     idle,
	}
}

// Limiter returns the bucket for ip, creating it on first use.
func (i *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	if v, ok := i.limiters.Get(ip); ok {
		limiter := v.(*rate.Limiter)
		// Touch so an active client keeps its bucket.
		i.limiters.Set(ip, limiter, i.idle)
		return limiter
	}
	limiter := rate.NewLimiter(i.r, i.b)
	if err := i.limiters.Add(ip, limiter, i.idle); err != nil {
		// Lost the race with a concurrent request from the same client.
		if v, ok := i.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b, 0)
	return func(c *gin.Context) {
		if !limiter.Limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
