package logging

import "go.uber.org/zap"

// ZapLogger is the default, non-noop Logger implementation.
type ZapLogger struct {
	z *zap.Logger
}

// NewZapLogger wraps an existing *zap.Logger as a Logger.
func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

// NewProductionLogger builds a ZapLogger using zap's production defaults
// (JSON encoding, info level, sampled).
func NewProductionLogger() (*ZapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(z), nil
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// Debug implements Logger.
func (l *ZapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZapFields(fields)...) }

// Info implements Logger.
func (l *ZapLogger) Info(msg string, fields ...Field) { l.z.Info(msg, toZapFields(fields)...) }

// Warn implements Logger.
func (l *ZapLogger) Warn(msg string, fields ...Field) { l.z.Warn(msg, toZapFields(fields)...) }

// Error implements Logger.
func (l *ZapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZapFields(fields)...) }

// Sync flushes any buffered log entries, mirroring *zap.Logger.Sync.
func (l *ZapLogger) Sync() error { return l.z.Sync() }

var _ Logger = (*ZapLogger)(nil)
