package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	ctxKeyCallID ctxKey = "call_id"
	ctxKeyUserID ctxKey = "user_id"
)

// New builds a zap logger for the given level and format ("json" or
// "console"). Unknown levels fall back to info.
func New(level, format string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// WithCallID returns a context carrying the call identifier for logging.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, ctxKeyCallID, callID)
}

// WithUserID returns a context carrying the local user identifier.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// FromContext decorates the logger with any call/user identifiers present in
// the context.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := []zapcore.Field{}

	if callID, ok := ctx.Value(ctxKeyCallID).(string); ok && callID != "" {
		fields = append(fields, zap.String("call_id", callID))
	}
	if userID, ok := ctx.Value(ctxKeyUserID).(string); ok && userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}

	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
