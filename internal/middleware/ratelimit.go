package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for the rate limiter
type RateLimitConfig struct {
	// RequestsPerWindow is the per-IP request budget within Window
	RequestsPerWindow int
	// Window is the sliding window duration
	Window time.Duration
	// SkipPaths are exempt from rate limiting
	SkipPaths []string
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		SkipPaths:         []string{"/health", "/metrics", "/ready"},
	}
}

// SlidingWindowRateLimit returns a Redis-backed sliding window rate limiter.
// Returns 429 with a Retry-After header when the limit is exceeded. When
// Redis is unreachable the limiter fails open.
func SlidingWindowRateLimit(redisClient *redis.Client, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, skipPath := range cfg.SkipPaths {
			if c.Request.URL.Path == skipPath {
				c.Next()
				return
			}
		}

		if redisClient == nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		now := time.Now().Unix()
		windowStart := now - int64(cfg.Window.Seconds())
		redisKey := fmt.Sprintf("ratelimit:ip:%s", c.ClientIP())

		var timestamps []int64
		if val, err := redisClient.Get(ctx, redisKey).Result(); err == nil && val != "" {
			json.Unmarshal([]byte(val), &timestamps)
		}

		valid := make([]int64, 0, len(timestamps))
		for _, ts := range timestamps {
			if ts > windowStart {
				valid = append(valid, ts)
			}
		}

		remaining := cfg.RequestsPerWindow - len(valid) - 1
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if len(valid) >= cfg.RequestsPerWindow {
			retryAfter := valid[0] - now + int64(cfg.Window.Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(int(retryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		valid = append(valid, now)
		data, _ := json.Marshal(valid)
		redisClient.Set(ctx, redisKey, data, cfg.Window+time.Second)

		c.Next()
	}
}
