package hook

import "quol-input/internal/keys"

// decideSuppression reports whether the OS event must be swallowed: true if
// any fired hotkey asked for suppression or any key listener's suppressed set
// contains key. Mouse events always pass.
func decideSuppression(kind EventKind, key keys.Name, fired []firedHotkey, listeners []*keyListener) bool {
	if kind != KeyDown && kind != KeyUp {
		return false
	}
	for _, f := range fired {
		if f.suppress {
			return true
		}
	}
	for _, l := range listeners {
		if l.suppressed.Has(key) {
			return true
		}
	}
	return false
}
