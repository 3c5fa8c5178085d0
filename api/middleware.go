package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"driftlens/logging"
)

// corsMiddleware sets permissive CORS headers for the analysis API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeadersMiddleware adds the same baseline response headers the
// teacher's API carries.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// loggingMiddleware logs one structured entry per request, tagged with
// the request id assigned by RequestIDMiddleware.
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString("request_id"),
		})
	}
}

// recoveryMiddleware converts a panic into a 500 response and an error log
// entry carrying the panic value, request id and path, instead of crashing
// the process, matching spec.md §7's
// policy that the engine recovers nothing locally.
func recoveryMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", map[string]interface{}{
					"request_id": c.GetString("request_id"),
					"panic":      r,
					"path":       c.Request.URL.Path,
				})
				SendError(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}
