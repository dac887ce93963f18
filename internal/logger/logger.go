// Package logger wraps log/slog behind a package-level singleton shared
// by every component of the process.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	once sync.Once
	log  *slog.Logger
)

// Config selects the verbosity and encoding of the process-wide logger.
type Config struct {
	Level     string // DEBUG, INFO, WARN, ERROR
	Format    string // json, text
	AddSource bool
}

// Init initializes the global logger. Only the first call takes effect;
// later calls are no-ops.
func Init(cfg Config) {
	once.Do(func() {
		var level slog.Level
		switch cfg.Level {
		case "DEBUG":
			level = slog.LevelDebug
		case "WARN":
			level = slog.LevelWarn
		case "ERROR":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

		var handler slog.Handler
		if cfg.Format == "text" {
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}

		log = slog.New(handler)
		slog.SetDefault(log)
	})
}

// Get returns the global logger, defaulting to INFO/json if Init was never
// called.
func Get() *slog.Logger {
	if log == nil {
		Init(Config{Level: "INFO", Format: "json"})
	}
	return log
}

type ctxKey string

const connIDKey ctxKey = "conn_id"

// WithConnID attaches a per-connection id to ctx for later retrieval by
// FromContext; the server stamps one onto every accepted connection.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// FromContext returns a logger with conn_id attached, if ctx carries one.
func FromContext(ctx context.Context) *slog.Logger {
	l := Get()
	if connID, ok := ctx.Value(connIDKey).(string); ok && connID != "" {
		return l.With("conn_id", connID)
	}
	return l
}

func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
