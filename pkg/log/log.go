// Package log configures structured logging for the flows processes.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs the default logger. format is "json" or "text".
func Setup(logLevel, format string) {
	slog.SetDefault(New(os.Stderr, logLevel, format))
}

func New(w io.Writer, logLevel, format string) *slog.Logger {
	level := ParseLevel(logLevel)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
