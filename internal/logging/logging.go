// Package logging wraps the gateway's structured logger.
//
// It mirrors the shape of the teacher's common/logger package: a package
// level *zap.Logger plus context-aware helper functions, so every
// component logs through the same sink instead of fmt.Println.
package logging

import (
	"context"
	"os"

	"github.com/Laisky/zap"
)

// Logger is the process-wide structured logger. Replaced in tests via Set.
var Logger *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	Logger = l
}

// Set installs a replacement logger, used by tests and by cmd/gatewayz to
// switch to development mode.
func Set(l *zap.Logger) {
	if l != nil {
		Logger = l
	}
}

type ctxKey struct{}

// fieldsFromCtx returns the fields attached to ctx via WithFields, if any.
func fieldsFromCtx(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey{}).([]zap.Field); ok {
		return v
	}
	return nil
}

// WithFields returns a child context carrying structured fields that every
// subsequent log call made with that context will include — used to pin
// request_id/user_id for the lifetime of one admitted request.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	all := append(append([]zap.Field{}, fieldsFromCtx(ctx)...), fields...)
	return context.WithValue(ctx, ctxKey{}, all)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Debug(msg, append(fieldsFromCtx(ctx), fields...)...)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Info(msg, append(fieldsFromCtx(ctx), fields...)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Warn(msg, append(fieldsFromCtx(ctx), fields...)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Error(msg, append(fieldsFromCtx(ctx), fields...)...)
}

// Fatal logs and exits the process; reserved for startup failures.
func Fatal(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
	os.Exit(1)
}
