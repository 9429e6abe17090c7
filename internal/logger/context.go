package logger

import (
	"context"
	"log/slog"
)

// contextKey is unexported so no other package can collide with it.
type contextKey struct{}

// WithContext returns a copy of ctx carrying l.
// HTTP middleware and gRPC interceptors use it to inject a request-scoped logger.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or slog.Default when none is present.
// It never returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With enriches the logger stored in ctx with attrs and stores the result back.
func With(ctx context.Context, attrs ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(attrs...))
}
