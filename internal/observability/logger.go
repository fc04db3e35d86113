// Package observability builds the zap logger and the Prometheus-backed recorders.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultServiceName = "bankrolld"

// LoggerConfig selects the logger flavor.
type LoggerConfig struct {
	Level       string
	Development bool
	Service     string
}

// NewLogger builds a production JSON logger, or a console logger in development.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if trimmed := strings.TrimSpace(cfg.Level); trimmed != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(trimmed))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = defaultServiceName
	}
	logger, err := zapConfig.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		return nil, fmt.Errorf("zap init: %w", err)
	}
	return logger, nil
}
