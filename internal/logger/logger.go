// Package logger builds the process-wide zap logger and the echo request
// logging middleware.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of the logger.
type Config struct {
	// Level is one of debug, info, warn, error.  Anything else means info.
	Level string
	// Format is json or console.
	Format string
}

// New builds a logger writing to stdout.
func New(cfg Config) *zap.Logger {
	return zap.New(newCore(cfg, zapcore.AddSync(os.Stdout)), zap.AddStacktrace(zapcore.ErrorLevel))
}

func newCore(cfg Config, out zapcore.WriteSyncer) zapcore.Core {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "@timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.MessageKey = "message"

	var enc zapcore.Encoder
	if cfg.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewCore(enc, out, level)
}
