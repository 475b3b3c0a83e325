// Package logging builds the zap loggers used across nfpwatch.
// Components receive a named child logger so every line carries its
// subsystem (collector, investigator, store, ...).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs the process-wide root logger. Verbose enables debug level.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Named returns a child logger for a subsystem. Nil-safe so tests can pass
// a zero-value component without wiring a logger.
func Named(l *zap.Logger, subsystem string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(subsystem)
}
