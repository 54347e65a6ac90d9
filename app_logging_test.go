package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLoggerWritesJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	var teed []string
	level := new(slog.LevelVar)
	logger := newLogger(&buf, level, func(_ slog.Level, text string) {
		teed = append(teed, text)
	})

	logger.Info("[INFO-HOOK] input hook installed", "platform", "evdev")
	logger.Debug("[DEBUG-HOOK] hidden")
	logger.Warn("[WARN-HOOK] grab failed", "path", "/dev/input/event3")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if rec["msg"] != "[INFO-HOOK] input hook installed" || rec["platform"] != "evdev" {
		t.Fatalf("record = %v", rec)
	}

	if len(teed) != 1 || teed[0] != "[WARN-HOOK] grab failed path=/dev/input/event3" {
		t.Fatalf("teed = %q", teed)
	}
}

func TestNewLoggerFollowsLevelVar(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := newLogger(&buf, level, nil)

	logger.Debug("before")
	level.Set(slog.LevelDebug)
	logger.Debug("after")

	if bytes.Contains(buf.Bytes(), []byte("before")) || !bytes.Contains(buf.Bytes(), []byte("after")) {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestIsTerminal(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Fatal("isTerminal(buffer) = true")
	}
}
