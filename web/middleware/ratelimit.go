package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a sliding-window per-IP limiter held in process memory.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		rl.mu.Lock()
		var recent []time.Time
		for _, t := range rl.requests[ip] {
			if now.Sub(t) < rl.window {
				recent = append(recent, t)
			}
		}

		if len(recent) >= rl.limit {
			rl.requests[ip] = recent
			rl.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests, please try later.",
			})
			c.Abort()
			return
		}

		rl.requests[ip] = append(recent, now)
		rl.mu.Unlock()

		c.Next()
	}
}

// StartCleanup drops idle IPs so the map does not grow without bound.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		for {
			time.Sleep(interval)

			rl.mu.Lock()
			now := time.Now()
			for ip, times := range rl.requests {
				var recent []time.Time
				for _, t := range times {
					if now.Sub(t) < rl.window {
						recent = append(recent, t)
					}
				}
				if len(recent) == 0 {
					delete(rl.requests, ip)
				} else {
					rl.requests[ip] = recent
				}
			}
			rl.mu.Unlock()
		}
	}()
}
