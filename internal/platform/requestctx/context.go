package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "gearconnect/requestctx/logger"
	traceKey  contextKey = "gearconnect/requestctx/trace"
	localeKey contextKey = "gearconnect/requestctx/locale"
)

var noopLogger = zap.NewNop()

// TraceInfo is the trace metadata attached to an inbound request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// WithLogger stores the request-scoped logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request-scoped logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace identifier or an empty string.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithLocale stores the resolved display language code.
func WithLocale(ctx context.Context, lang string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeKey, lang)
}

// Locale returns the resolved display language code, if any.
func Locale(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	lang, _ := ctx.Value(localeKey).(string)
	return lang
}
