package logging

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// LoggerContextKey is the key for the logger in the request context
	LoggerContextKey ContextKey = "logger"

	requestFieldsKey ContextKey = "request_fields"
)

// requestFields collects attributes that handlers and middleware further down
// the chain want on the completion line (the authenticated user, a rejection code)
type requestFields struct {
	mu   sync.Mutex
	args []any
}

func (f *requestFields) add(args ...any) {
	f.mu.Lock()
	f.args = append(f.args, args...)
	f.mu.Unlock()
}

func (f *requestFields) snapshot() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.args...)
}

// AddRequestFields attaches key-value pairs to the "request completed" line of
// the current request. Outside RequestLogger it does nothing.
func AddRequestFields(ctx context.Context, args ...any) {
	if f, ok := ctx.Value(requestFieldsKey).(*requestFields); ok {
		f.add(args...)
	}
}

// RequestLogger logs one line per request with its outcome. The request-scoped
// logger is stored in the context for handlers and mail delivery.
func RequestLogger(logger *Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote_ip", r.RemoteAddr,
			)
			reqLogger.Debug("request started")

			fields := &requestFields{}
			ctx := WithContext(r.Context(), reqLogger)
			ctx = context.WithValue(ctx, requestFieldsKey, fields)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			args := append([]any{
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}, fields.snapshot()...)

			reqLogger.Log(r.Context(), level, "request completed", args...)
		})
	}
}

var defaultLogger = NewLogger(true)

// SetDefault replaces the logger returned when a context carries none
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLoggerFromContext retrieves the logger from the request context
func GetLoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return defaultLogger
}
