package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rag-chatbot-platform/utils"
)

// RateLimitMiddleware limits requests per client IP with an in-process
// token bucket. Health checks are exempt. State is per-process; a
// horizontally scaled deployment needs a shared limiter instead.
func RateLimitMiddleware(requestsPerSecond float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
			limiters[ip] = limiter
		}
		return limiter
	}

	return func(c *gin.Context) {
		if c.FullPath() == "/health" {
			c.Next()
			return
		}

		limiter := limiterFor(c.ClientIP())
		if !limiter.Allow() {
			c.Header("X-RateLimit-Limit", strconv.Itoa(burst))
			c.Header("X-RateLimit-Remaining", "0")
			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{"limit": burst})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}
