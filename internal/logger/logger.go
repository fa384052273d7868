// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to w in the given format at the given level.
// Every record carries the service name.
func New(w io.Writer, service, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level[%s]: %w", level, err)
	}

	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case FormatText, "":
		h = slog.NewTextHandler(w, &opts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, &opts)
	default:
		return nil, fmt.Errorf("unknown log format[%s]", format)
	}

	return slog.New(h).With("service", service), nil
}
