package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/schoolgate/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet is one independent bucket table; each RateLimit call gets its own.
type limiterSet struct {
	mu      sync.Mutex
	buckets map[string]*rateLimiter
	limit   rate.Limit
	burst   int
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// ByClientIP charges requests to the caller's IP.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByDevice charges kiosk requests to their device ID, falling back to IP.
func ByDevice(c *gin.Context) string {
	if id := c.GetString(ContextDeviceIDKey); id != "" {
		return "device:" + id
	}
	return c.ClientIP()
}

// RateLimit applies a token bucket of perMinute requests per key.
func RateLimit(perMinute int, key KeyFunc) gin.HandlerFunc {
	perMinute = max(perMinute, 1)
	set := &limiterSet{
		buckets: map[string]*rateLimiter{},
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   max(perMinute/2, 1),
	}
	if key == nil {
		key = ByClientIP
	}

	return func(ctx *gin.Context) {
		if !set.allow(key(ctx)) {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, l := range s.buckets {
		if now.After(l.expires) {
			delete(s.buckets, k)
		}
	}

	l, ok := s.buckets[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = l
	}
	l.expires = now.Add(5 * time.Minute)
	return l.limiter.Allow()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
