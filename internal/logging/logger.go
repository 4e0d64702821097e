// Package logging adapts zap to the Nakama runtime.Logger interface so engine code logs the same
// way inside Nakama and in the standalone host.
package logging

import (
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	base   *zap.Logger
	fields map[string]interface{}
}

// New wraps a zap logger.
func New(base *zap.Logger) runtime.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &zapLogger{base: base, fields: map[string]interface{}{}}
}

// NewProduction builds a JSON logger at the given level ("debug", "info", "warn", "error").
func NewProduction(level string) (runtime.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return New(base), nil
}

// Nop discards everything.
func Nop() runtime.Logger {
	return New(zap.NewNop())
}

func (l *zapLogger) Debug(format string, v ...interface{}) {
	l.base.Debug(fmt.Sprintf(format, v...))
}

func (l *zapLogger) Info(format string, v ...interface{}) {
	l.base.Info(fmt.Sprintf(format, v...))
}

func (l *zapLogger) Warn(format string, v ...interface{}) {
	l.base.Warn(fmt.Sprintf(format, v...))
}

func (l *zapLogger) Error(format string, v ...interface{}) {
	l.base.Error(fmt.Sprintf(format, v...))
}

func (l *zapLogger) WithField(key string, v interface{}) runtime.Logger {
	return l.WithFields(map[string]interface{}{key: v})
}

func (l *zapLogger) WithFields(fields map[string]interface{}) runtime.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		merged[k] = v
		zf = append(zf, zap.Any(k, v))
	}
	return &zapLogger{base: l.base.With(zf...), fields: merged}
}

func (l *zapLogger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}
