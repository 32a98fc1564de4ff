// Package logging provides the colored terminal handler the relink CLI
// plugs into log/slog. Library packages take any *slog.Logger and never
// depend on this.
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

// Handler renders records as single lines:
//
//	15:04:05.000 | INFO  | message key=value
//
// Color is applied per level and degrades to plain text on non-terminal
// writers via fatih/color's NO_COLOR handling.
type Handler struct {
	mu    *sync.Mutex // shared across WithAttrs/WithGroup clones
	out   io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHandler returns a handler writing colored lines to out. A nil level
// means slog.LevelInfo.
func NewHandler(out io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{
		mu:    &sync.Mutex{},
		out:   out,
		level: level,
	}
}

// New builds a logger on a Handler. Debug lowers the threshold to
// slog.LevelDebug.
func New(out io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(NewHandler(out, level))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString(level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString(level)
	case r.Level >= slog.LevelInfo:
		level = color.BlueString(level)
	default:
		level = color.MagentaString(level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %-5s | %s",
		color.GreenString(r.Time.Format("15:04:05.000")),
		level,
		r.Message,
	)
	for _, attr := range h.attrs {
		appendAttr(&b, attr.Key, attr.Value)
	}
	r.Attrs(func(attr slog.Attr) bool {
		appendAttr(&b, h.qualify(attr.Key), attr.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func appendAttr(b *strings.Builder, key string, value slog.Value) {
	b.WriteString(color.CyanString(" %s=%v", key, value))
}

// WithAttrs qualifies the keys with the group open at registration time,
// so attributes added before a WithGroup keep their bare names.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.qualify(attr.Key)
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.qualify(name)
	return &clone
}

func (h *Handler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}
