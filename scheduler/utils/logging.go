package utils

import (
	"io"
	"log/slog"
)

// SetupLogger installs a JSON slog handler at level as the process default
// and returns it.
func SetupLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
