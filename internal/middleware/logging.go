package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	Logger *zap.Logger
	// SkipPaths is a list of paths to skip logging
	SkipPaths []string
}

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig(logger *zap.Logger) LoggingConfig {
	return LoggingConfig{
		Logger:    logger,
		SkipPaths: []string{"/health", "/metrics", "/ready"},
	}
}

// Logging returns a middleware that logs HTTP requests as structured JSON
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return LoggingWithConfig(DefaultLoggingConfig(logger))
}

// LoggingWithConfig returns a logging middleware with custom configuration
func LoggingWithConfig(cfg LoggingConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, skipPath := range cfg.SkipPaths {
			if c.Request.URL.Path == skipPath {
				c.Next()
				return
			}
		}

		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
		}

		if requestID := GetRequestID(c); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
		if query := c.Request.URL.RawQuery; query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		switch {
		case status >= 500:
			cfg.Logger.Error("HTTP request", fields...)
		case status >= 400:
			cfg.Logger.Warn("HTTP request", fields...)
		default:
			cfg.Logger.Info("HTTP request", fields...)
		}
	}
}
