// Package logger provides structured logging for the monthly candle
// pipeline using slog, with configurable handlers, optional rotating file
// output, and per-request trace IDs propagated through context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/johnayoung/go-monthly-candles/internal/config"
)

// ContextKey represents keys for context values.
type ContextKey string

// TraceIDKey is the context key carrying the per-request trace ID.
const TraceIDKey ContextKey = "trace_id"

// Manager owns the base logger and the underlying writer so file output can
// be closed cleanly on shutdown.
type Manager struct {
	base   *slog.Logger
	writer io.WriteCloser
}

// New creates a Manager from the logging configuration.
func New(cfg config.LoggingConfig) (*Manager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Manager{base: slog.New(handler), writer: writer}, nil
}

// Logger returns the base logger.
func (m *Manager) Logger() *slog.Logger {
	return m.base
}

// Component returns a logger tagged with a component name.
func (m *Manager) Component(name string) *slog.Logger {
	return m.base.With("component", name)
}

// Close releases the underlying writer. Standard streams are left open.
func (m *Manager) Close() error {
	if m.writer == nil {
		return nil
	}
	if _, ok := m.writer.(*nopCloser); ok {
		return nil
	}
	return m.writer.Close()
}

// WithTraceID returns a context carrying a fresh trace ID, or the context
// unchanged when one is already present.
func WithTraceID(ctx context.Context) context.Context {
	if TraceID(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, uuid.NewString())
}

// TraceID extracts the trace ID from the context, empty when absent.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the logger annotated with the context's trace ID.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := TraceID(ctx); id != "" {
		return logger.With("trace_id", id)
	}
	return logger
}

func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stdout":
		return &nopCloser{os.Stdout}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log file path is required for file output")
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	default:
		return &nopCloser{os.Stderr}, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct {
	io.Writer
}

func (*nopCloser) Close() error { return nil }
