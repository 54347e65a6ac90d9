package hook

import "quol-input/internal/keys"

// firedHotkey is a hotkey whose combo became fully held on this event.
type firedHotkey struct {
	id       ID
	label    string
	fn       func()
	suppress bool
}

// comboMatcher tracks held keys and the hotkeys that have already fired for
// the current hold. Invariant: every active id names a hotkey whose combo is
// a subset of held.
type comboMatcher struct {
	held   keys.Set
	active map[ID]struct{}
}

func newComboMatcher() comboMatcher {
	return comboMatcher{
		held:   make(keys.Set),
		active: make(map[ID]struct{}),
	}
}

// keyDown marks key held and fires every inactive hotkey that is now fully
// held. A repeated down for an already-held key re-evaluates but cannot fire
// a hotkey that is still active. Unmapped keys are never held.
func (m *comboMatcher) keyDown(key keys.Name, hotkeys []*hotkeyEntry) []firedHotkey {
	if key == keys.Unknown {
		return nil
	}
	m.held[key] = struct{}{}

	var fired []firedHotkey
	for _, h := range hotkeys {
		if _, ok := m.active[h.id]; ok {
			continue
		}
		if !h.combo.HeldIn(m.held) {
			continue
		}
		m.active[h.id] = struct{}{}
		fired = append(fired, firedHotkey{id: h.id, label: h.label, fn: h.fn, suppress: h.suppress})
	}
	return fired
}

// keyUp releases key and re-arms every active hotkey that contains it. An
// empty held set resets the active set unconditionally, which resyncs state
// after a missed release.
func (m *comboMatcher) keyUp(key keys.Name, lookup func(ID) (*hotkeyEntry, bool)) {
	if key == keys.Unknown {
		return
	}
	delete(m.held, key)

	for id := range m.active {
		h, ok := lookup(id)
		if !ok || h.combo.Contains(key) {
			delete(m.active, id)
		}
	}
	if len(m.held) == 0 {
		clear(m.active)
	}
}

func (m *comboMatcher) forget(id ID) {
	delete(m.active, id)
}

func (m *comboMatcher) reset() {
	clear(m.held)
	clear(m.active)
}
