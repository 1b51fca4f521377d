// Package middleware contains shared Gin middleware used by the admin HTTP
// layer.
//
// This file adapts utils.KeyedLimiter into a per-client request limiter.
// The limiter is process-local and meant for edge-level abuse control on the
// admin API; it is not an authorization mechanism.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reminder-bot/internal/utils"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByTokenOrIP prefers the admin principal set by AdminAuth and falls back
// to the client IP address. Keys are prefixed to keep namespaces apart.
func KeyByTokenOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyAdmin); ok {
			if s, ok := v.(string); ok && s != "" {
				return "admin:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter enforces per-key token buckets on HTTP requests.
type RateLimiter struct {
	lim   *utils.KeyedLimiter
	keyFn keyFunc
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{lim: utils.NewKeyedLimiter(rps, burst), keyFn: keyFn}
}

// Handler returns a Gin middleware that rejects requests over the limit with
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	{"request_id": "<uuid>", "code": "rate_limited", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.lim.Allow(rl.keyFn(c)) {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
