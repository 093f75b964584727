package tokensmith

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with tokensmith-specific field helpers, keeping
// log field names consistent across the store, packer, and search index.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at Info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithDataset tags the logger with the dataset prefix.
func (l *Logger) WithDataset(prefix string) *Logger {
	return &Logger{Logger: l.Logger.With("dataset", prefix)}
}

// WithSplit tags the logger with a split name.
func (l *Logger) WithSplit(split string) *Logger {
	return &Logger{Logger: l.Logger.With("split", split)}
}
