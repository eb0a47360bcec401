package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// setupLogger installs the global slog logger writing to w. Format "json"
// selects the JSON handler, anything else the human-readable charm handler.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		handler = log.NewWithOptions(w, log.Options{
			Level:           log.Level(logLevel),
			ReportTimestamp: true,
			Prefix:          "mailpipe",
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
