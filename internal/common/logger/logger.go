// Package logger builds the zap loggers used across Solvio services
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func parseLevel(level string, production bool) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	}
	if production {
		return zap.InfoLevel
	}
	return zap.DebugLevel
}

// New builds a logger from the APP_ENV and LOG_LEVEL environment
// variables. Production gets JSON with ISO8601 timestamps, everything
// else a colored console encoder.
func New() *zap.Logger {
	production := os.Getenv("APP_ENV") == "production" || os.Getenv("APP_ENV") == "prod"

	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(os.Getenv("LOG_LEVEL"), production))

	log, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		panic("logger init: " + err.Error())
	}
	return log
}

// WithService tags a logger with the service name
func WithService(log *zap.Logger, service string) *zap.Logger {
	return log.With(zap.String("service", service))
}

// WithRequestID tags a logger with a request correlation ID
func WithRequestID(log *zap.Logger, requestID string) *zap.Logger {
	return log.With(zap.String("request_id", requestID))
}
