package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"applypilot-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log line.
const (
	OperationKey      = "operation"
	RecipientCountKey = "recipientCount"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if op, ok := c.Get(OperationKey); ok {
			fields["operation"] = op
		}
		if n, ok := c.Get(RecipientCountKey); ok {
			fields["recipient_count"] = n
		}
		telemetry.Info("request.complete", fields)
	}
}
