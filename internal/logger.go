package internal

import (
	"io"
	"log/slog"
)

// ServiceName tags every log line.
const ServiceName = "hireready-usage"

// NewLogger returns a text logger in development and a JSON logger
// elsewhere. level accepts slog level names in any case ("debug", "WARN",
// "info+2"); anything unparseable falls back to info.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if env == "development" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", ServiceName)
}
