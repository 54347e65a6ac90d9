package workerutil

import (
	"log/slog"
	"runtime/debug"
)

// SafeCall runs fn and converts a panic into an error log. It reports whether
// fn completed without panicking.
func SafeCall(name string, fn func()) (ok bool) {
	if fn == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] callback recovered from panic",
				"callback", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	fn()
	return true
}
