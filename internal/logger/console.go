package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// CharmHandler renders slog records with charmbracelet/log.
type CharmHandler struct {
	logger *charmlog.Logger
	opts   CharmHandlerOptions
	attrs  []slog.Attr
	groups []string
}

// CharmHandlerOptions configures the Charm handler.
type CharmHandlerOptions struct {
	// Level is the minimum level to log. A *slog.LevelVar allows live changes.
	Level      slog.Leveler
	NoColor    bool
	TimeFormat string
	ShowCaller bool
	Prefix     string
}

func charmStyles(noColor bool) *charmlog.Styles {
	styles := charmlog.DefaultStyles()
	if noColor {
		for lvl, st := range styles.Levels {
			styles.Levels[lvl] = lipgloss.NewStyle().SetString(st.Value())
		}
		styles.Key = lipgloss.NewStyle()
		styles.Value = lipgloss.NewStyle()
		styles.Timestamp = lipgloss.NewStyle()
		styles.Prefix = lipgloss.NewStyle()
		return styles
	}

	level := func(label, color string) lipgloss.Style {
		return lipgloss.NewStyle().SetString(label).Bold(true).Foreground(lipgloss.Color(color))
	}
	styles.Levels[charmlog.DebugLevel] = level("DEBU", "63")
	styles.Levels[charmlog.InfoLevel] = level("INFO", "36")
	styles.Levels[charmlog.WarnLevel] = level("WARN", "214")
	styles.Levels[charmlog.ErrorLevel] = level("ERRO", "196")
	styles.Key = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styles.Value = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styles.Timestamp = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styles.Prefix = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("105"))

	// well-known dsf keys get their own colour
	styles.Keys["peer"] = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	styles.Keys["service"] = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	styles.Keys["req_id"] = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	return styles
}

// NewCharmHandler creates a new Charm-based slog handler.
func NewCharmHandler(w io.Writer, opts *CharmHandlerOptions) *CharmHandler {
	if opts == nil {
		opts = &CharmHandlerOptions{}
	}
	o := *opts
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}
	if o.TimeFormat == "" {
		o.TimeFormat = time.TimeOnly
	}

	// filtering happens in Enabled so the level can change at runtime
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportCaller:    o.ShowCaller,
		ReportTimestamp: true,
		TimeFormat:      o.TimeFormat,
		Prefix:          o.Prefix,
		Level:           charmlog.DebugLevel,
	})
	l.SetStyles(charmStyles(o.NoColor))

	return &CharmHandler{logger: l, opts: o}
}

// Enabled implements slog.Handler.
func (h *CharmHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *CharmHandler) Handle(_ context.Context, r slog.Record) error {
	kvs := make([]any, 0, (len(h.attrs)+r.NumAttrs())*2)
	for _, a := range h.attrs {
		kvs = h.appendAttr(kvs, a, nil)
	}
	r.Attrs(func(a slog.Attr) bool {
		kvs = h.appendAttr(kvs, a, h.groups)
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		h.logger.Error(r.Message, kvs...)
	case r.Level >= slog.LevelWarn:
		h.logger.Warn(r.Message, kvs...)
	case r.Level >= slog.LevelInfo:
		h.logger.Info(r.Message, kvs...)
	default:
		h.logger.Debug(r.Message, kvs...)
	}
	return nil
}

// appendAttr flattens groups into dotted keys.
func (h *CharmHandler) appendAttr(kvs []any, a slog.Attr, groups []string) []any {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return kvs
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := groups
		if a.Key != "" {
			sub = append(append([]string{}, groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			kvs = h.appendAttr(kvs, ga, sub)
		}
		return kvs
	}
	return append(kvs, key, displayValue(a.Value))
}

// WithAttrs implements slog.Handler.
func (h *CharmHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		if len(h.groups) > 0 {
			a.Key = strings.Join(h.groups, ".") + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

// WithGroup implements slog.Handler.
func (h *CharmHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	return c
}

func (h *CharmHandler) clone() *CharmHandler {
	return &CharmHandler{
		logger: h.logger,
		opts:   h.opts,
		attrs:  append([]slog.Attr{}, h.attrs...),
		groups: append([]string{}, h.groups...),
	}
}

func displayValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.Any()
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
