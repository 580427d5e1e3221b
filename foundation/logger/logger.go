// Package logger provides a convenience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs a Sugared Logger that writes to stdout and
// provides human readable timestamps.
func New(service string) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	log, err := config.Build(zap.WithCaller(true))
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

// NewNop returns a logger that discards everything. Useful for tests
// that exercise code paths requiring a logger.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Sync flushes the logger, ignoring environments where stdout
// can't be synced.
func Sync(log *zap.SugaredLogger) {
	if err := log.Sync(); err != nil {
		if _, ok := os.LookupEnv("TIDE_DEBUG_SYNC"); ok {
			log.Errorw("logger sync", "ERROR", err)
		}
	}
}
