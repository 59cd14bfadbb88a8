package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavor.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// NewLogger builds the process-wide zap logger. An unparsable level falls
// back to info.
//
// Request api_key values are opaque credentials: they must never appear in
// a log field at any level, including debug.
func NewLogger(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := opts.Format
	if encoding == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoding = "json"
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
