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

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool `envconfig:"ENABLED" default:"false"`
	RequestsPerSecond int  `envconfig:"RPS" default:"100"`
	Burst             int  `envconfig:"BURST" default:"200"`
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// idleClient is how long a per-IP limiter is kept without traffic.
const idleClient = 10 * time.Minute

// RateLimit limits requests per client IP. Exempt paths, such as /health
// polled by a starting CLI, are not counted.
func RateLimit(cfg RateLimitConfig, exempt ...string) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > idleClient {
			for key, cl := range clients {
				if now.Sub(cl.lastSeen) > idleClient {
					delete(clients, key)
				}
			}
			lastSweep = now
		}
		cl, exists := clients[ip]
		if !exists {
			cl = &client{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			clients[ip] = cl
		}
		cl.lastSeen = now
		reservation := cl.limiter.ReserveN(now, 1)
		mu.Unlock()

		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":  "rate_limited",
				"detail": "rate limit exceeded, retry in " + delay.Round(time.Millisecond).String(),
			})
			return
		}

		c.Next()
	}
}
