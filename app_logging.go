package main

import (
	"io"
	"log/slog"

	"golang.org/x/term"

	"quol-input/internal/feed"
	"quol-input/internal/logfeed"
)

// newLogger writes text records to a terminal and JSON lines otherwise.
// Warnings and errors are also handed to onEntry.
func newLogger(w io.Writer, level slog.Leveler, onEntry logfeed.EntryCallback) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if isTerminal(w) {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(logfeed.NewTeeHandler(base, slog.LevelWarn, onEntry))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// publishLogEntry forwards a log record to the event feed when one is up.
func (a *App) publishLogEntry(level slog.Level, text string) {
	a.publish(feed.Log(level.String(), text))
}
