package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/botte/botte-service/config"
)

// Recovery turns a panic into a logged 500.
func Recovery(logger *zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error().
			Str("request_id", GetRequestID(c)).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Msg("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// Base is the chain every route runs: recovery, request id, request logger.
func Base(logger *zerolog.Logger) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		Recovery(logger),
		RequestID(),
		RequestLogger(logger),
	}
}

// Protected is appended to Base for the authenticated routes: authorizer,
// then rate limiter.
func Protected(auth config.AuthConfig, token *config.SecretSource, limits RateLimiterConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		Authorizer(auth.Enabled, token),
		RateLimit(limits),
	}
}
