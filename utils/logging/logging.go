package logging

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// The log shipper expects fixed field names for time (_time) and message (_msg).
func convertKeysForShipping(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetFileLogOptions(level slog.Level, addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: convertKeysForShipping,
		AddSource:   addSource,
	}
}

// Setup sends structured logs as JSON to logFile and as text to console, and
// makes the result the default logger for both slog and log.
func Setup(logFile io.Writer, console io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(logFile, GetFileLogOptions(level, true)),
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
	))

	slog.SetDefault(logger)

	return logger
}
