package server

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seva/internal/observability/logger"
	"github.com/smallbiznis/seva/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonClientRate = "client-rate"

type allowFunc func(ctx context.Context, clientKey string) (*ratelimit.Result, error)

// CheckoutRateLimit throttles checkout per client IP. A limiter outage lets
// the request through; losing a donation costs more than a burst of sessions.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return s.clientRateLimit("checkout", func(l clientLimiter) allowFunc { return l.AllowCheckout })
}

// OrderLookupRateLimit throttles the routes that call the gateway for an order.
func (s *Server) OrderLookupRateLimit() gin.HandlerFunc {
	return s.clientRateLimit("order lookup", func(l clientLimiter) allowFunc { return l.AllowOrderLookup })
}

func (s *Server) clientRateLimit(scope string, pick func(clientLimiter) allowFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.clientLimit == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := c.FullPath()
		res, err := pick(s.clientLimit)(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn(scope+" rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if res.Allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Next()
			return
		}

		logger.FromContext(ctx).Warn(scope+" rate limit exceeded",
			zap.String("reason", rateLimitReasonClientRate),
			zap.String("endpoint", endpoint),
		)
		s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonClientRate)

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-Rate-Limited-Reason", rateLimitReasonClientRate)
		AbortWithError(c, ErrRateLimited)
	}
}
