package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/internal/ratelimit"
)

// RateLimit throttles a route per caller. The subject is the basic auth
// username when the request carries one, the client IP otherwise, so
// authenticated and anonymous traffic get separate buckets.
func RateLimit(lim ratelimit.Limiter, bucket ratelimit.Bucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if user, _, ok := c.Request.BasicAuth(); ok && user != "" {
			subject = user
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		dec, err := lim.Allow(c.Request.Context(), route, subject, bucket)
		if err != nil {
			// Fail open so limiter trouble cannot take the API down.
			Logger(c).Warn("rate limit check failed", "route", route, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			c.Next()
			return
		}

		retryAfterSeconds := int(dec.RetryAfter.Seconds())
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(route).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
