// Package logging builds the slog loggers shared by the api, worker
// and medctl entrypoints. Every logger emits JSON with a "service"
// attribute so log lines from the three binaries can be told apart
// when they land in the same stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger returns a JSON logger writing to stdout, tagged with
// the given service name. The level string follows ParseLevel; an
// unrecognised value falls back to info.
func NewJSONLogger(service, level string) *slog.Logger {
	return NewJSONLoggerTo(os.Stdout, service, level)
}

// NewJSONLoggerTo is NewJSONLogger with an explicit sink. Tests use it
// to capture output without touching process stdout.
func NewJSONLoggerTo(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel maps a config-supplied level name to a slog level.
// "trace" maps to debug and "fatal" to error since slog has no native
// spelling for either.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
