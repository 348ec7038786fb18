package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// RequestLogger logs one line per request. Health probes are logged at
// debug level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.FullPath() == "/health/live" || c.FullPath() == "/health/ready" {
			logger.Log.Debug("HTTP request", fields...)
			return
		}
		logger.Log.Info("HTTP request", fields...)
	}
}
