package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
)

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansiRed
	case l >= slog.LevelWarn:
		return ansiYellow
	case l >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiCyan
	}
}

// ttyHandler renders compact colored log lines for interactive terminals.
type ttyHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func (h *ttyHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *ttyHandler) clone() *ttyHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *ttyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *ttyHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	if c.group == "" {
		c.group = name
	} else {
		c.group += "." + name
	}
	return c
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		sub := a.Key
		if group != "" {
			sub = group + "." + sub
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, sub, ga)
		}
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, " %s%s=%s%v", ansiDim, key, ansiReset, a.Value)
}

func (h *ttyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s %s%-5s%s %s",
		ansiDim, r.Time.Format("15:04:05.000"), ansiReset,
		levelColor(r.Level), r.Level.String(), ansiReset,
		r.Message,
	)
	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

var _ slog.Handler = (*ttyHandler)(nil)

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	_, noColor := os.LookupEnv("NO_COLOR")
	if !noColor && isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(&ttyHandler{
			mu:    new(sync.Mutex),
			w:     colorable.NewColorableStderr(),
			level: level,
		})
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
