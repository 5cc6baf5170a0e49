package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/model"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// ContextKeyRequestID is where RequestID stores the ID on gin.Context.
const ContextKeyRequestID = "request_id"

// RequestID assigns every request an ID, reusing a well-formed incoming
// X-Request-ID so IDs can be traced across services. The ID is also stored on
// the request's context.Context, where the analysis service picks it up as
// the key of the call log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(HeaderRequestID))
		if err != nil || id == uuid.Nil {
			id = uuid.New()
		}
		c.Set(ContextKeyRequestID, id.String())
		c.Request = c.Request.WithContext(model.ContextWithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id.String())
		c.Next()
	}
}

// Logger writes one structured line per request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(ContextKeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request", fields...)
		case c.Writer.Status() >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
