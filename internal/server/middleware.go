package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coursepay/internal/identity"
	obscontext "github.com/smallbiznis/coursepay/internal/observability/context"
	"github.com/smallbiznis/coursepay/internal/observability/logger"
	"go.uber.org/zap"
)

const contextCallerKey = "caller"

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// AuthRequired verifies the bearer token and stores the caller.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := s.verifier.VerifyCallerIdentity(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextCallerKey, caller)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.ActorUser, caller.UserID))
		c.Next()
	}
}

func callerFromContext(c *gin.Context) (identity.Caller, bool) {
	v, ok := c.Get(contextCallerKey)
	if !ok {
		return identity.Caller{}, false
	}
	caller, ok := v.(identity.Caller)
	return caller, ok && caller.UserID != ""
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), caller, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// CreateRateLimit throttles invoice creation per caller.
func (s *Server) CreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFromContext(c)
		if !ok || s.limiter == nil {
			c.Next()
			return
		}

		res := s.limiter.AllowCreate(c.Request.Context(), caller.UserID)
		if res.Allowed {
			c.Next()
			return
		}

		s.metrics.RateLimited()
		logger.FromContext(c.Request.Context()).Warn("checkout create rate limited",
			zap.String("owner_id", caller.UserID),
		)
		retry := int(res.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		AbortWithError(c, ErrRateLimited)
	}
}
