package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const HeaderRequestID = "X-Request-ID"

// GinMiddleware tags every request with an id (taken from X-Request-ID or
// generated), stores a child logger in the request context and logs the
// completed request.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		child := logger.With().
			Str(FieldModule, "http").
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(child.WithContext(c.Request.Context()))

		c.Next()

		evt := child.Info().
			Int(FieldStatus, c.Writer.Status()).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
		if tok := c.GetString(FieldClientToken); tok != "" {
			evt = evt.Str(FieldClientToken, tok)
		}
		evt.Msg("request completed")
	}
}
