package process

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/vk/mvnflow/internal/redact"
)

// maxLine bounds how much of an unterminated line is buffered. Past it the
// buffer is logged in pieces, keeping back a tail that could begin a secret
// known to the logger's redacting handler.
const maxLine = 64 * 1024

// LineWriter logs everything written to it one line at a time. Close
// flushes a trailing partial line.
type LineWriter struct {
	ctx    context.Context
	logger *slog.Logger
	level  slog.Level
	attrs  []any

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter logs lines at level with the given attributes.
func NewLineWriter(ctx context.Context, logger *slog.Logger, level slog.Level, attrs ...any) *LineWriter {
	return &LineWriter{ctx: ctx, logger: logger, level: level, attrs: attrs}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		w.emit(line[:i])
	}
	if w.buf.Len() > maxLine {
		w.emit(w.buf.Next(w.cut(w.buf.Bytes())))
	}
	return len(p), nil
}

// Close implements io.Closer.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Next(w.buf.Len()))
	}
	return nil
}

// cut picks how many leading bytes of an overlong line to log now. It never
// splits a rune and never ends inside the start of a secret.
func (w *LineWriter) cut(b []byte) int {
	n := len(b) - redact.PartialSuffix(b, redact.Values(w.logger.Handler()))
	for n > 0 && n < len(b) && !utf8.RuneStart(b[n]) {
		n--
	}
	return n
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.Log(w.ctx, w.level, string(line), w.attrs...)
}
