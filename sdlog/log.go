// Package sdlog is the structured logging façade used throughout the
// SignalDB core. It follows the teacher's global-logger-with-child-loggers
// pattern (nodestorage/v2/core) rather than threading a logger through
// every constructor: most collections never configure one explicitly and
// get a sane production default.
package sdlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the package-level logger used by default. Replace it with
// SetLogger during process startup to redirect SignalDB's own diagnostics
// (the persistence coordinator logs failed saves through it).
var Logger *zap.Logger

func init() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	Logger = logger
}

// SetLogger replaces the package-level logger.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	Logger = logger
}

// With returns a child logger carrying the given structured fields, e.g.
// sdlog.With(zap.String("collection", name)) for a collection-scoped logger.
func With(fields ...zap.Field) *zap.Logger {
	return Logger.With(fields...)
}

// Debug logs at debug level on the package logger.
func Debug(msg string, fields ...zap.Field) { Logger.Debug(msg, fields...) }

// Info logs at info level on the package logger.
func Info(msg string, fields ...zap.Field) { Logger.Info(msg, fields...) }

// Warn logs at warn level on the package logger.
func Warn(msg string, fields ...zap.Field) { Logger.Warn(msg, fields...) }

// Error logs at error level on the package logger.
func Error(msg string, fields ...zap.Field) { Logger.Error(msg, fields...) }
