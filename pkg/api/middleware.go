package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// requestID assigns each request a correlation id, honoring one supplied by
// the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog logs one line per request with latency and status.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// versionPin rejects requests that pin a schema or prompt set version this
// deployment does not serve.
func versionPin(schemaVersion, promptSetVersion string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-Schema-Version"); v != "" && v != schemaVersion {
			abortUnsupportedVersion(c, "schema version", v, schemaVersion)
			return
		}
		if v := c.GetHeader("X-Prompt-Set-Version"); v != "" && v != promptSetVersion {
			abortUnsupportedVersion(c, "prompt set version", v, promptSetVersion)
			return
		}
		c.Next()
	}
}
