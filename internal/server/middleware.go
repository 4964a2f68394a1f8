package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeaderCallbackSecret authenticates the confirmation callback sender.
const HeaderCallbackSecret = "X-Callback-Secret"

// CallbackAuthRequired rejects callbacks that do not carry the shared secret.
// An empty configured secret disables the check (local development only).
func (s *Server) CallbackAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.Callback.SharedSecret
		if secret == "" {
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader(HeaderCallbackSecret))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// CallbackRateLimit throttles callback deliveries per sender address.
func (s *Server) CallbackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.callbackLimiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.callbackLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			// A broken limiter must not take the reconciler down with it.
			s.log.Warn("callback rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "payments_callback")
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
