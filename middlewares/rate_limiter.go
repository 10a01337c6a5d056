package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter memberi setiap IP token bucket sendiri.
type RateLimiter struct {
	rate    rate.Limit
	burst   int
	ttl     time.Duration
	mu      sync.Mutex
	clients map[string]*visitor
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		ttl:     10 * time.Minute,
		clients: make(map[string]*visitor),
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.clients[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[ip] = v
	}
	v.lastSeen = now

	// bersihkan IP yang lama tidak aktif
	for k, other := range rl.clients {
		if now.Sub(other.lastSeen) > rl.ttl {
			delete(rl.clients, k)
		}
	}
	return v.limiter
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "Terlalu banyak request, silakan tunggu beberapa saat",
			})
			return
		}
		c.Next()
	}
}
