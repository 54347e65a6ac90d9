package main

import (
	"fmt"
	"strings"
	"time"

	"quol-input/internal/keys"
)

// statusText renders the engine state as "key: value" lines.
func (a *App) statusText() string {
	var b strings.Builder
	line := func(key string, value any) {
		fmt.Fprintf(&b, "%s: %v\n", key, value)
	}

	if a.engine == nil {
		line("state", "unavailable")
		return b.String()
	}
	snap := a.engine.Snapshot()
	line("state", snap.State)
	line("platform", snap.Platform)
	line("suppress", a.caps.Suppress)
	line("inject", a.caps.Inject)
	line("toggle_key", orNone(a.toggle.ActiveBinding()))
	line("keymaps", len(a.keymaps.Bindings()))
	line("hotkeys", snap.Hotkeys)
	line("active_hotkeys", snap.Active)
	line("held", orNone(joinNames(snap.Held)))
	if hub := a.feedHub.Load(); hub != nil {
		line("feed", hub.URL())
		line("feed_client", hub.HasActiveConnection())
	} else {
		line("feed", "disabled")
	}
	line("usage", a.usage != nil)
	line("uptime", time.Since(a.startedAt).Truncate(time.Second))
	return b.String()
}

func joinNames(names []keys.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
