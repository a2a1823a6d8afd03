package middleware

import (
	"fmt"
	"time"

	"solcheck/internal/common/ratelimit"
	"solcheck/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimitPolicy sets per-client and per-route limits. Zero disables a limit.
type RateLimitPolicy struct {
	Window    time.Duration `yaml:"window"`
	ClientMax int           `yaml:"clientMax"`
	RouteMax  int           `yaml:"routeMax"`
}

// RateLimitMiddleware enforces policy on one route.
func RateLimitMiddleware(limiter *ratelimit.Service, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.ClientMax > 0 {
			key := fmt.Sprintf("solcheck:rate:client:%s:%s", ClientID(c), routeKey)
			if err := limiter.Allow(ctx, key, policy.ClientMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.RouteMax > 0 {
			key := fmt.Sprintf("solcheck:rate:route:%s", routeKey)
			if err := limiter.Allow(ctx, key, policy.RouteMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
