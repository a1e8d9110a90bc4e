// Package log provides structured logging with correlation IDs. Pretty output
// is rendered by zerolog's console writer; JSON output is plain slog.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cavepedia/cavepedia/internal/config"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys for logging.
const (
	CorrelationIDKey ContextKey = "correlation_id"
	RequestIDKey     ContextKey = "request_id"
)

// New creates a logger writing to w in the given format. Records logged with
// a context carry its correlation and request IDs, so services can hold a
// plain *slog.Logger and still have their lines grouped per cycle or request.
func New(w io.Writer, format config.LogFormat, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch format {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = newConsoleHandler(w, opts)
	}
	return slog.New(contextHandler{Handler: handler})
}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := CorrelationID(ctx); id != "" {
		r.AddAttrs(slog.String(string(CorrelationIDKey), id))
	}
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String(string(RequestIDKey), id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// NewCorrelationID returns ctx tagged with a fresh correlation ID, and the ID.
// Every log line written with the returned context carries it.
func NewCorrelationID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(New(os.Stdout, config.LogFormatPretty, "INFO"))
}

// Default returns the package logger: pretty output at info level until
// Configure replaces it.
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// Configure builds the logger cfg asks for, writing to w, and installs it as
// both the package default and slog's default.
func Configure(cfg config.AppConfig, w io.Writer) *slog.Logger {
	l := New(w, cfg.LogFormat(), cfg.LogLevel())
	defaultLogger.Store(l)
	slog.SetDefault(l)
	return l
}
