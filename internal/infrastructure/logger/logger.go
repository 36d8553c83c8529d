package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stockledger/internal/config"
)

const serviceName = "stockledger"

// New builds the process logger. Unknown levels fall back to info. The
// console encoding is meant for local runs; everything else logs JSON.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.InitialFields = map[string]interface{}{"service": serviceName}

	if cfg.Encoding == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.Sampling = nil
	}

	return zcfg.Build()
}
