package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// consoleTimeFormat is the timestamp layout of console output.
const consoleTimeFormat = "2006-01-02T15:04:05"

// consoleHandler writes one coloured line per record:
//
//	2026-01-02T15:04:05 | INFO  | session connected client_id=reader
//
// Colour is dropped automatically when the output is not a terminal
// (see color.NoColor).
type consoleHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func newConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *consoleHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &consoleHandler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(color.GreenString(r.Time.Format(consoleTimeFormat)))
	b.WriteString(" | ")
	b.WriteString(levelColor(r.Level)(fmt.Sprintf("%-5s", r.Level.String())))
	b.WriteString(" | ")
	b.WriteString(color.CyanString(r.Message))

	for _, attr := range h.attrs {
		writeAttr(&b, "", attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, h.prefix, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		next.attrs = append(next.attrs, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix += attr.Key + "."
		}
		for _, ga := range attr.Value.Group() {
			writeAttr(b, groupPrefix, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(color.HiBlackString(prefix + attr.Key + "="))
	b.WriteString(attr.Value.String())
}

func levelColor(level slog.Level) func(format string, a ...any) string {
	switch {
	case level >= slog.LevelError:
		return color.RedString
	case level >= slog.LevelWarn:
		return color.YellowString
	case level >= slog.LevelInfo:
		return color.BlueString
	default:
		return color.MagentaString
	}
}
