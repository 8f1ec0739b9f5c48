package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/botte/botte-service/internal/metrics"
)

const redacted = "[REDACTED]"

// RedactedHeaders are never logged in clear.
var RedactedHeaders = []string{HeaderAuthorization, HeaderTelegramSecretToken}

// RequestLogger logs every request with its headers, secrets redacted, and
// records the request latency.
func RequestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(latency.Seconds())

		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Interface("headers", RedactHeaders(c.Request.Header)).
			Msg("HTTP request")
	}
}

// RedactHeaders flattens headers for logging, hiding the secret ones.
func RedactHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		out[strings.ToLower(key)] = strings.Join(values, ",")
	}
	for _, name := range RedactedHeaders {
		if _, ok := out[strings.ToLower(name)]; ok {
			out[strings.ToLower(name)] = redacted
		}
	}
	return out
}
