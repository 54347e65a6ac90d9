// Package logfeed tees warning and error log records to the event feed so
// the GUI can surface engine problems (denied hook installation, missing
// uinput, unparseable config) without reading the log file.
package logfeed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
)

// EntryCallback receives the level and a one-line rendering of a record:
// the message followed by its attributes as key=value pairs.
type EntryCallback func(level slog.Level, text string)

// TeeHandler wraps a base [slog.Handler] and tees records at or above
// minLevel to a callback. The base handler keeps its own level: a record can
// reach the callback even when the base would drop it.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string      // dot-separated group prefix for attribute keys
	attrs    []slog.Attr // attributes added through WithAttrs, keys already qualified
}

// NewTeeHandler creates a TeeHandler that delegates to base and invokes
// callback for every record whose level is >= minLevel. A nil callback makes
// it a plain pass-through.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{
		base:     base,
		callback: callback,
		minLevel: minLevel,
	}
}

func (h *TeeHandler) teeing(level slog.Level) bool {
	return h.callback != nil && level >= h.minLevel
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.teeing(level) || h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler when it is enabled there,
// then invokes the callback. The callback runs even if the base fails.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.base.Enabled(ctx, record.Level) {
		err = h.base.Handle(ctx, record)
	}

	if h.teeing(record.Level) {
		text := h.render(record)
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Not slog: that would re-enter this handler.
					fmt.Fprintf(os.Stderr, "[logfeed] callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(record.Level, text)
		}()
	}

	return err
}

func (h *TeeHandler) render(record slog.Record) string {
	var b strings.Builder
	b.WriteString(record.Message)
	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	return b.String()
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, sub := range a.Value.Group() {
			appendAttr(b, key, sub)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

// WithAttrs returns a TeeHandler whose base handler has attrs applied. The
// attributes are also kept for the callback rendering.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	kept := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(kept, h.attrs)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		kept = append(kept, a)
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    h.group,
		attrs:    kept,
	}
}

// WithGroup returns a TeeHandler whose base handler is wrapped with the
// given group; later attribute keys are prefixed with it.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &TeeHandler{
		base:     h.base.WithGroup(name),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    newGroup,
		attrs:    h.attrs,
	}
}
