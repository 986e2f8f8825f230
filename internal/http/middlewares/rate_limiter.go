package middlewares

import (
	"net"
	"net/http"
	"strings"

	"github.com/geocoder89/faceauth/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit enforces the injected keyed limiter for a derived client key.
// Biometric attempts are the expensive, abusable operation here, so the gate
// sits in front of every image-carrying endpoint.
func RateLimit(limiter ratelimit.Limiter, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived

			key = clientIP(c)
		}

		d, err := limiter.Admit(c.Request.Context(), key)

		if err != nil {
			// limiter trouble is never a reason to reject a login
			c.Next()
			return
		}

		if !d.Allowed {
			retryAfter := int(d.RetryAfter.Seconds())

			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many attempts. Please try again shortly.",
				},
			})

			return
		}

		c.Next()
	}
}

// helper functions

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	// Normalize host:port forms

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}

// tiny int->string helper.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [32]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return strings.TrimSpace(string(b[i:]))
}
