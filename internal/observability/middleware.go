package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID in and out of the service.
const RequestIDHeader = "X-Request-ID"

// sizeWriter counts response bytes for the completion log line.
type sizeWriter struct {
	gin.ResponseWriter
	size int
}

func (w *sizeWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *sizeWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.size += n
	return n, err
}

// RequestLoggingMiddleware tags every request with a correlation ID and
// logs its outcome. The ID is taken from the X-Request-ID header when
// the client sends one, so a caller can trace a chat run end to end.
func RequestLoggingMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(RequestIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header(RequestIDHeader, correlationID)

		ctx := WithCorrelationID(c.Request.Context(), correlationID)
		if userID, ok := c.Get("user_id"); ok {
			if uid, ok := userID.(string); ok {
				ctx = WithUserID(ctx, uid)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		sw := &sizeWriter{ResponseWriter: c.Writer}
		c.Writer = sw

		logger.Debug(ctx, "Request received", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
		})

		c.Next()

		fields := map[string]interface{}{
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status":        c.Writer.Status(),
			"duration_ms":   time.Since(start).Milliseconds(),
			"response_size": sw.size,
			"ip":            c.ClientIP(),
		}

		switch {
		case len(c.Errors) > 0:
			fields["errors"] = c.Errors.String()
			logger.Error(ctx, "Request failed", c.Errors.Last().Err, fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn(ctx, "Request rejected", fields)
		default:
			logger.Info(ctx, "Request completed", fields)
		}
	}
}

// MetricsMiddleware records per-request metrics. Paths are normalized to
// the route template so parameterized routes share one series.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		sw := &sizeWriter{ResponseWriter: c.Writer}
		c.Writer = sw

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		RecordHTTPMetrics(c.Request.Method, path, c.Writer.Status(), time.Since(start), sw.size)
	}
}

// RecoveryMiddleware converts panics into a 500 response instead of
// dropping the connection.
func RecoveryMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "Panic recovered", nil, map[string]interface{}{
					"panic":  r,
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    "INTERNAL_ERROR",
						"message": "An unexpected error occurred",
					},
				})
			}
		}()

		c.Next()
	}
}
