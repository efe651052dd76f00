package logger

import (
	"io"
	"log/slog"
	"strings"

	"github.com/go-chi/httplog/v3"
)

// Options describes the process logger
type Options struct {
	App     string
	Version string
	Env     string
	Level   string
}

// New creates a JSON logger using the ECS field schema shared with request logs
func New(w io.Writer, opts Options) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(opts.Env != "development")

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", opts.App),
		slog.String("version", opts.Version),
		slog.String("env", opts.Env),
	)
}

// ParseLevel maps a level name to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
