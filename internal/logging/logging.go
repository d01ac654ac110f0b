// Package logging builds the process-wide structured logger. The
// teacher logs with the standard library's log package
// (log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)); crashkeep
// upgrades to zap because both the ingest path and the digest worker
// need request/archive-scoped structured fields the way the original
// Rust implementation's tracing::info!(archive_hash = %.., ...) calls
// do, which plain log.Printf cannot express cleanly.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger at the given level ("debug",
// "info", "warn", "error"). Unknown levels fall back to "info".
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}
