package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL: бакет, к которому столько не обращались, уже полон, его можно
// выбросить и создать заново при следующем запросе.
const limiterIdleTTL = 10 * time.Minute

type operatorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter держит отдельный token bucket на каждого оператора
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*operatorLimiter
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &RateLimiter{
		limiters:  make(map[string]*operatorLimiter),
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		idleTTL:   limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow consumes one token of key's bucket. Not more than once per idleTTL it also
// drops buckets nobody touched for idleTTL.
func (r *RateLimiter) Allow(key string) bool {
	now := r.now()

	r.mu.Lock()
	if now.Sub(r.lastSweep) >= r.idleTTL {
		for k, ol := range r.limiters {
			if now.Sub(ol.lastSeen) >= r.idleTTL {
				delete(r.limiters, k)
			}
		}
		r.lastSweep = now
	}
	ol, ok := r.limiters[key]
	if !ok {
		ol = &operatorLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = ol
	}
	ol.lastSeen = now
	r.mu.Unlock()

	return ol.limiter.AllowN(now, 1)
}

// OperatorRateLimitMiddleware limits uploads per operator (client IP without auth).
func OperatorRateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiter := NewRateLimiter(perMinute)

	return func(c *gin.Context) {
		key := c.GetString(ctxOperatorID)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
