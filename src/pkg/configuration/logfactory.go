package configuration

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	TEXT_HANDLER int8 = 0
	JSON_HANDLER int8 = 1
)

// logFactory makes and returns logs
func logFactory(w io.Writer, opts *slog.HandlerOptions, handlerType int8) *slog.Logger {
	var handler slog.Handler
	switch handlerType {
	case TEXT_HANDLER:
		handler = slog.NewTextHandler(w, opts)
	case JSON_HANDLER:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// setLogger builds the process logger from a level name and installs it as
// the slog default
func setLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slog.Default().Error("Invalid log level given - setting to warn")
		slogLevel = slog.LevelWarn
	}

	opts := slog.HandlerOptions{Level: slogLevel}
	if slogLevel == slog.LevelDebug {
		opts.AddSource = true
	}

	log := logFactory(os.Stdout, &opts, JSON_HANDLER)
	slog.SetDefault(log)
	return log
}

func withAttrs(logger *slog.Logger, a ...any) *slog.Logger {
	// Loop through two at a time. If an odd number of items are added to a, the last
	// will be dropped.
	for i := 0; i < (len(a))/2; i++ {
		j := i * 2
		logger = logger.With(a[j], a[j+1])
	}

	return logger
}
