// Package redact provides a slog.Handler that masks secret values before a
// record reaches the underlying handler.
package redact

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// Mask replaces secret values in log output.
const Mask = "***"

// Source supplies the values to mask. It is consulted on every record, so
// secrets registered after the logger was built are still masked.
type Source interface {
	Values() []string
}

// Handler wraps another slog.Handler and masks secrets in messages and
// attribute values.
type Handler struct {
	inner  slog.Handler
	source Source
}

// NewHandler wraps inner.
func NewHandler(inner slog.Handler, source Source) *Handler {
	return &Handler{inner: inner, source: source}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	values := h.source.Values()
	if len(values) == 0 {
		return h.inner.Handle(ctx, r)
	}

	out := slog.NewRecord(r.Time, r.Level, String(r.Message, values), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(maskAttr(a, values))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	values := h.source.Values()
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a, values)
	}
	return &Handler{inner: h.inner.WithAttrs(masked), source: h.source}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), source: h.source}
}

// String replaces every occurrence of each value in s with Mask.
func String(s string, values []string) string {
	for _, v := range values {
		if v != "" && strings.Contains(s, v) {
			s = strings.ReplaceAll(s, v, Mask)
		}
	}
	return s
}

func maskAttr(a slog.Attr, values []string) slog.Attr {
	if len(values) == 0 {
		return a
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, String(v.String(), values))
	case slog.KindGroup:
		group := v.Group()
		masked := make([]any, len(group))
		for i, ga := range group {
			masked[i] = maskAttr(ga, values)
		}
		return slog.Group(a.Key, masked...)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, String(x.Error(), values))
		case []string:
			cp := make([]string, len(x))
			for i, s := range x {
				cp[i] = String(s, values)
			}
			return slog.Any(a.Key, cp)
		case map[string]string:
			cp := make(map[string]string, len(x))
			for k, s := range x {
				cp[k] = String(s, values)
			}
			return slog.Any(a.Key, cp)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// Values returns the secrets h masks, or nil when h is not a redacting
// handler.
func Values(h slog.Handler) []string {
	if rh, ok := h.(*Handler); ok {
		return rh.source.Values()
	}
	return nil
}

// PartialSuffix returns the length of the longest suffix of b that is the
// start of one of values but not the whole value. Output split there would
// carry a secret across two records, neither of which masks it.
func PartialSuffix(b []byte, values []string) int {
	longest := 0
	for _, v := range values {
		for k := min(len(v)-1, len(b)); k > longest; k-- {
			if bytes.HasSuffix(b, []byte(v[:k])) {
				longest = k
				break
			}
		}
	}
	return longest
}
