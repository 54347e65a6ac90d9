package logfeed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturedEntry struct {
	level slog.Level
	text  string
}

func newTestCallback() (EntryCallback, func() []capturedEntry) {
	var mu sync.Mutex
	var entries []capturedEntry

	cb := func(level slog.Level, text string) {
		mu.Lock()
		defer mu.Unlock()
		entries = append(entries, capturedEntry{level: level, text: text})
	}
	get := func() []capturedEntry {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedEntry(nil), entries...)
	}
	return cb, get
}

func TestTeeHandlerLevels(t *testing.T) {
	tests := []struct {
		name    string
		log     func(*slog.Logger)
		wantTee bool
	}{
		{name: "error", log: func(l *slog.Logger) { l.Error("boom") }, wantTee: true},
		{name: "warn", log: func(l *slog.Logger) { l.Warn("boom") }, wantTee: true},
		{name: "info", log: func(l *slog.Logger) { l.Info("boom") }, wantTee: false},
		{name: "debug", log: func(l *slog.Logger) { l.Debug("boom") }, wantTee: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
			cb, get := newTestCallback()
			tt.log(slog.New(NewTeeHandler(base, slog.LevelWarn, cb)))

			if got := len(get()) == 1; got != tt.wantTee {
				t.Fatalf("teed = %v, want %v", got, tt.wantTee)
			}
			if !strings.Contains(buf.String(), "boom") {
				t.Fatalf("base output %q missing record", buf.String())
			}
		})
	}
}

func TestTeeHandlerTeesBelowBaseLevel(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})
	cb, get := newTestCallback()
	logger := slog.New(NewTeeHandler(base, slog.LevelWarn, cb))

	logger.Warn("[WARN-HOOK] uinput unavailable")

	if entries := get(); len(entries) != 1 || entries[0].level != slog.LevelWarn {
		t.Fatalf("entries = %+v, want one warning", entries)
	}
	if buf.Len() != 0 {
		t.Fatalf("base handler wrote %q below its level", buf.String())
	}
}

func TestTeeHandlerRendersAttrs(t *testing.T) {
	cb, get := newTestCallback()
	base := slog.NewTextHandler(io.Discard, nil)
	logger := slog.New(NewTeeHandler(base, slog.LevelWarn, cb)).
		With("component", "hook").
		WithGroup("dev")

	logger.Warn("grab failed", "path", "/dev/input/event3", slog.Group("id", "bus", 3))

	entries := get()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := "grab failed component=hook dev.path=/dev/input/event3 dev.id.bus=3"
	if entries[0].text != want {
		t.Fatalf("text = %q, want %q", entries[0].text, want)
	}
}

func TestTeeHandlerNilCallback(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	handler := NewTeeHandler(base, slog.LevelWarn, nil)

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("Enabled(debug) = true with nil callback and info base")
	}
	slog.New(handler).Error("plain")
	if !strings.Contains(buf.String(), "plain") {
		t.Fatalf("base output = %q", buf.String())
	}
}

// errorHandler always fails Handle.
type errorHandler struct{ err error }

func (h *errorHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *errorHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h *errorHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *errorHandler) WithGroup(string) slog.Handler             { return h }

func TestTeeHandlerBaseErrorStillTees(t *testing.T) {
	baseErr := errors.New("disk full")
	cb, get := newTestCallback()
	handler := NewTeeHandler(&errorHandler{err: baseErr}, slog.LevelWarn, cb)

	err := handler.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "failure", 0))
	if !errors.Is(err, baseErr) {
		t.Fatalf("Handle() error = %v, want %v", err, baseErr)
	}
	if len(get()) != 1 {
		t.Fatal("callback not invoked when base handler failed")
	}
}

func TestTeeHandlerWithGroupEmpty(t *testing.T) {
	handler := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, nil)
	if got := handler.WithGroup(""); got != handler {
		t.Fatal("WithGroup(\"\") should return the receiver")
	}
	if got := handler.WithAttrs(nil); got != handler {
		t.Fatal("WithAttrs(nil) should return the receiver")
	}
}

func TestTeeHandlerCallbackPanicWritesToStderr(t *testing.T) {
	origStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = origStderr })

	handler := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, func(slog.Level, string) {
		panic("callback exploded")
	})
	if err := handler.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "x", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	w.Close()
	out, _ := io.ReadAll(r)
	if !strings.Contains(string(out), "callback exploded") {
		t.Fatalf("stderr = %q, want panic message", out)
	}
}
