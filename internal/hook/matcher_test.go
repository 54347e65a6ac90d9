package hook

import (
	"testing"

	"quol-input/internal/keys"
)

func testHotkey(t *testing.T, seq uint64, combo string, suppress bool) *hotkeyEntry {
	t.Helper()
	parsed, err := keys.ParseCombo(combo)
	if err != nil {
		t.Fatalf("ParseCombo(%q): %v", combo, err)
	}
	return &hotkeyEntry{id: newID(), seq: seq, combo: parsed, label: combo, suppress: suppress}
}

func lookupIn(entries ...*hotkeyEntry) func(ID) (*hotkeyEntry, bool) {
	return func(id ID) (*hotkeyEntry, bool) {
		for _, e := range entries {
			if e.id == id {
				return e, true
			}
		}
		return nil, false
	}
}

func TestComboMatcherEdgeTriggered(t *testing.T) {
	ab := testHotkey(t, 1, "a+b", false)
	hotkeys := []*hotkeyEntry{ab}
	m := newComboMatcher()

	if fired := m.keyDown("a", hotkeys); len(fired) != 0 {
		t.Fatalf("a down fired %d", len(fired))
	}
	if fired := m.keyDown("b", hotkeys); len(fired) != 1 || fired[0].id != ab.id {
		t.Fatalf("b down fired %v, want a+b", fired)
	}
	for range 3 {
		if fired := m.keyDown("a", hotkeys); len(fired) != 0 {
			t.Fatalf("repeat a down fired %d", len(fired))
		}
	}

	m.keyUp("b", lookupIn(ab))
	if _, ok := m.active[ab.id]; ok {
		t.Fatal("a+b still active after b up")
	}
	if fired := m.keyDown("b", hotkeys); len(fired) != 1 {
		t.Fatalf("b re-press fired %d, want 1", len(fired))
	}
}

func TestComboMatcherOverlapping(t *testing.T) {
	ctrl := testHotkey(t, 1, "ctrl", false)
	ctrlShift := testHotkey(t, 2, "ctrl+shift", false)
	hotkeys := []*hotkeyEntry{ctrl, ctrlShift}
	m := newComboMatcher()

	fired := m.keyDown("ctrl", hotkeys)
	if len(fired) != 1 || fired[0].id != ctrl.id {
		t.Fatalf("ctrl down fired %v, want ctrl only", fired)
	}
	fired = m.keyDown("shift", hotkeys)
	if len(fired) != 1 || fired[0].id != ctrlShift.id {
		t.Fatalf("shift down fired %v, want ctrl+shift only", fired)
	}
}

func TestComboMatcherResync(t *testing.T) {
	ab := testHotkey(t, 1, "a+b", false)
	hotkeys := []*hotkeyEntry{ab}
	m := newComboMatcher()
	m.keyDown("a", hotkeys)
	m.keyDown("b", hotkeys)

	m.keyUp("b", lookupIn(ab))
	if len(m.active) != 0 {
		t.Fatalf("active = %v after b up", m.active)
	}
	if !m.held.Has("a") {
		t.Fatal("a dropped from held")
	}

	// An entry that cannot be looked up any more is dropped on the next
	// release, and an empty held set clears everything.
	m.active[newID()] = struct{}{}
	m.keyUp("a", lookupIn(ab))
	if len(m.held) != 0 || len(m.active) != 0 {
		t.Fatalf("held=%v active=%v, want both empty", m.held, m.active)
	}
}

func TestComboMatcherUnknownKeyHeld(t *testing.T) {
	m := newComboMatcher()
	m.keyDown(keys.Unknown, nil)
	if !m.held.Has(keys.Unknown) {
		t.Fatal("unknown key not tracked as held")
	}
	m.keyUp(keys.Unknown, lookupIn())
	if len(m.held) != 0 {
		t.Fatal("unknown key still held after release")
	}
}

func TestDecideSuppression(t *testing.T) {
	escListener := &keyListener{suppressed: keys.NewSet("esc")}
	plainListener := &keyListener{suppressed: keys.NewSet()}

	tests := []struct {
		name      string
		kind      EventKind
		key       keys.Name
		fired     []firedHotkey
		listeners []*keyListener
		want      bool
	}{
		{name: "nothing", kind: KeyDown, key: "a", want: false},
		{name: "suppressing hotkey", kind: KeyDown, key: "a", fired: []firedHotkey{{suppress: true}}, want: true},
		{name: "passive hotkey", kind: KeyDown, key: "a", fired: []firedHotkey{{suppress: false}}, want: false},
		{name: "listener suppresses key", kind: KeyDown, key: "esc", listeners: []*keyListener{plainListener, escListener}, want: true},
		{name: "listener other key", kind: KeyDown, key: "a", listeners: []*keyListener{escListener}, want: false},
		{
			name:      "any true wins",
			kind:      KeyDown,
			key:       "esc",
			fired:     []firedHotkey{{suppress: false}},
			listeners: []*keyListener{escListener},
			want:      true,
		},
		{name: "release listener", kind: KeyUp, key: "esc", listeners: []*keyListener{escListener}, want: true},
		{name: "mouse never", kind: MouseButton, key: "esc", fired: []firedHotkey{{suppress: true}}, listeners: []*keyListener{escListener}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decideSuppression(tt.kind, tt.key, tt.fired, tt.listeners); got != tt.want {
				t.Fatalf("decideSuppression() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectionSnapshot(t *testing.T) {
	var c collection[*moveListener]
	first := &moveListener{id: newID(), seq: 1}
	second := &moveListener{id: newID(), seq: 2}
	third := &moveListener{id: newID(), seq: 3}
	c.add(third.id, third)
	c.add(first.id, first)
	c.add(second.id, second)

	snap := c.snapshot()
	if len(snap) != 3 || snap[0] != first || snap[1] != second || snap[2] != third {
		t.Fatalf("snapshot not in registration order: %v", snap)
	}
	if again := c.snapshot(); &again[0] != &snap[0] {
		t.Fatal("unchanged collection rebuilt its snapshot")
	}

	if !c.remove(second.id) {
		t.Fatal("remove(second) = false")
	}
	if c.remove(second.id) {
		t.Fatal("second remove reported success")
	}
	if len(snap) != 3 {
		t.Fatal("held snapshot mutated by remove")
	}
	if got := c.snapshot(); len(got) != 2 || got[1] != third {
		t.Fatalf("snapshot after remove = %v", got)
	}

	c.clear()
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("snapshot after clear = %v", got)
	}
}

func TestBuildStrokes(t *testing.T) {
	table := keys.WindowsVK()
	combo, _ := keys.ParseCombo("ctrl+shift+é+hyper+c")
	got := buildStrokes(table, combo)
	want := []Stroke{
		{Code: 0x11, Down: true},
		{Code: 0x10, Down: true},
		{Char: 'é', Down: true},
		{Code: 0x43, Down: true},
		{Code: 0x43},
		{Char: 'é'},
		{Code: 0x10},
		{Code: 0x11},
	}
	if len(got) != len(want) {
		t.Fatalf("buildStrokes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stroke %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestComboMatcherIgnoresUnknown(t *testing.T) {
	unknown := testHotkey(t, 1, "unknown", false)
	m := newComboMatcher()

	if fired := m.keyDown(keys.Unknown, []*hotkeyEntry{unknown}); len(fired) != 0 {
		t.Fatalf("unknown down fired %v", fired)
	}
	if len(m.held) != 0 {
		t.Fatalf("held = %v, want empty", m.held)
	}
	m.keyUp(keys.Unknown, lookupIn(unknown))
	if len(m.held) != 0 || len(m.active) != 0 {
		t.Fatalf("state after unknown up: held=%v active=%v", m.held, m.active)
	}
}
