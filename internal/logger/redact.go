package logger

import (
	"context"
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of a redacted attribute.
const RedactedValue = "[REDACTED]"

// RedactingHandler wraps an slog.Handler and masks attributes whose key
// contains one of the configured field names.
type RedactingHandler struct {
	handler slog.Handler
	fields  []string
}

// NewRedactingHandler creates a handler that redacts the given fields.
func NewRedactingHandler(handler slog.Handler, fields []string) *RedactingHandler {
	lower := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			lower = append(lower, f)
		}
	}
	return &RedactingHandler{handler: handler, fields: lower}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(redacted), fields: h.fields}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name), fields: h.fields}
}

func (h *RedactingHandler) redact(a slog.Attr) slog.Attr {
	if h.sensitive(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		args := make([]any, len(group))
		for i, ga := range group {
			args[i] = h.redact(ga)
		}
		return slog.Group(a.Key, args...)
	}
	return a
}

func (h *RedactingHandler) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, f := range h.fields {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}
