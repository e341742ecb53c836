package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dream-push-backend/config"
)

// New builds a zap logger with the requested verbosity level.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	return zcfg.Build()
}

func parseLevel(v string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
