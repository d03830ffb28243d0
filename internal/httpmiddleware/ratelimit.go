package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenBucket is an in-memory per-client rate limiter. Good enough for a
// single instance; a multi-instance deployment would move this to redis.
type TokenBucket struct {
	capacity int
	rate     int // tokens per minute
	mu       sync.Mutex
	state    map[string]*bucket
	lastScan time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter refilling perMinute tokens up to capacity.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		lastScan: time.Now(),
	}
}

// Gin returns a middleware enforcing per-IP limits.
func (l *TokenBucket) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop buckets idle for an hour so one-off clients don't accumulate.
	if now.Sub(l.lastScan) > time.Hour {
		for k, b := range l.state {
			if now.Sub(b.last) > time.Hour {
				delete(l.state, k)
			}
		}
		l.lastScan = now
	}

	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
