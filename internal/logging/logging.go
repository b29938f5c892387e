// Package logging builds the process zap logger and attaches request
// scoped fields to it.
package logging

import (
	"context"
	"fmt"
	"strings"

	notevault "github.com/MrEthical07/notevault"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type userIDContextKey struct{}

// New returns a JSON logger for env "production" and a colored console
// logger otherwise. level is a zap level name; empty keeps the
// environment default (info in production, debug elsewhere).
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.MessageKey = "message"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level = strings.TrimSpace(level); level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}

	return cfg.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// WithUserID records the authenticated user on ctx for log correlation.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the user set by WithUserID.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(userIDContextKey{}).(string)
	return id
}

// WithContext returns log with the request_id and user_id found on ctx.
func WithContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if ctx == nil {
		return log
	}
	if id := notevault.RequestIDFromContext(ctx); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	if id := UserIDFromContext(ctx); id != "" {
		log = log.With(zap.String("user_id", id))
	}
	return log
}
