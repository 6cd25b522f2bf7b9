package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/notely/pkg/errors"
	"github.com/charlesng35/notely/pkg/logger"
	"github.com/charlesng35/notely/pkg/metrics"
	"github.com/charlesng35/notely/pkg/response"
)

// RatePolicy describes one fixed-window limit.
type RatePolicy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the policy limits anything.
func (p RatePolicy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// RateLimit returns a middleware that limits requests per (clientIP, route) within
// a fixed window. Counters live in store; when the store fails the request is let
// through and the failure logged.
func RateLimit(store RateStore, policy RatePolicy) gin.HandlerFunc {
	if store == nil {
		store = NewMemoryRateStore()
	}
	if policy.Name == "" {
		policy.Name = "default"
	}

	return func(c *gin.Context) {
		if !policy.Enabled() {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := "ratelimit:" + policy.Name + ":" + c.ClientIP() + "|" + route

		count, ttl, err := store.Increment(c.Request.Context(), key, policy.Window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate store unavailable",
				zap.String("policy", policy.Name),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := policy.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		reset := int(math.Ceil(ttl.Seconds()))

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > policy.Limit {
			metrics.RateLimited.WithLabelValues(policy.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(reset))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
