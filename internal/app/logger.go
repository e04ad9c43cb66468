package app

import (
	"io"
	"log/slog"

	"github.com/vk/mvnflow/internal/redact"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the per-run logger. Every record passes through the
// redacting handler, so values registered in secrets are printed as ***.
// Unknown levels fall back to info; NewConfig has rejected them already.
func newLogger(levelStr, formatStr string, outW io.Writer, secrets redact.Source) *slog.Logger {
	level, ok := logLevels[levelStr]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler = slog.NewTextHandler(outW, opts)
	if formatStr == "json" {
		inner = slog.NewJSONHandler(outW, opts)
	}
	return slog.New(redact.NewHandler(inner, secrets))
}
