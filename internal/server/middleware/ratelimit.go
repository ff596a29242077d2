// file: internal/server/middleware/ratelimit.go
// version: 2.0.0
// guid: 1331705a-85cb-4158-92f5-5ce203d8a0e7

// Package middleware holds gin middleware shared by the API routes.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleTTL is how long an unused client bucket is kept.
const idleTTL = 15 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Lookups that miss the
// metadata cache call out to remote catalogs, so the API is throttled per
// client rather than globally.
type IPRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int
	burst     int
	exempt    map[string]bool
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter allows requestsPerMinute per client IP with the given
// burst. Values below 1 are raised to 1. Routes in exempt (gin route
// patterns such as "/api/v1/events") are never limited.
func NewIPRateLimiter(requestsPerMinute int, burst int, exempt ...string) *IPRateLimiter {
	ex := make(map[string]bool, len(exempt))
	for _, route := range exempt {
		ex[route] = true
	}
	return &IPRateLimiter{
		buckets:   make(map[string]*bucket),
		perMinute: max(requestsPerMinute, 1),
		burst:     max(burst, 1),
		exempt:    ex,
		now:       time.Now,
	}
}

// reserve takes a token for ip and returns how long the caller must wait
// for it. A positive wait means the request is rejected and the token is
// handed back.
func (r *IPRateLimiter) reserve(ip string) time.Duration {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > idleTTL {
		for key, b := range r.buckets {
			if now.Sub(b.lastSeen) > idleTTL {
				delete(r.buckets, key)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(r.perMinute)/60), r.burst)}
		r.buckets[ip] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// clients reports the number of tracked client buckets.
func (r *IPRateLimiter) clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// Middleware returns a Gin middleware that enforces the configured limit.
func (r *IPRateLimiter) Middleware() gin.HandlerFunc {
	limit := strconv.Itoa(r.perMinute)
	return func(c *gin.Context) {
		if r.exempt[c.FullPath()] {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		c.Header("X-RateLimit-Limit", limit)
		if wait := r.reserve(ip); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":  "rate limit exceeded",
				"code":   "RATE_LIMITED",
				"status": http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}
