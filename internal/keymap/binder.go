// Package keymap binds configured remap groups to the hook engine. Each
// mapping registers a suppressing hotkey on its source combo that types the
// destination combo.
package keymap

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"quol-input/internal/config"
	"quol-input/internal/hook"
)

// Engine is the part of the hook engine a Binder uses.
type Engine interface {
	AddHotkey(combo string, fn func(), suppress bool) (hook.ID, error)
	RemoveHotkey(id hook.ID)
	SendKeys(combo string) error
}

// Binding is one active remap.
type Binding struct {
	Group string
	From  string
	To    string
}

// FireFunc observes a remap after its destination was sent.
type FireFunc func(b Binding)

// Binder owns the hotkeys registered for the keymap groups.
type Binder struct {
	engine Engine
	onFire FireFunc

	mu      sync.Mutex
	handles []hook.ID
	active  []Binding
}

// NewBinder returns a Binder registering through engine. onFire may be nil.
func NewBinder(engine Engine, onFire FireFunc) *Binder {
	return &Binder{engine: engine, onFire: onFire}
}

// Apply removes every hotkey the binder owns and registers the mappings of
// the enabled groups. Groups are applied in order and a source combo already
// bound by an earlier group is skipped. Returns the number of bound mappings.
func (b *Binder) Apply(groups []config.KeymapGroup) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearLocked()

	bound := make(map[string]string)
	for _, g := range groups {
		if !g.Enabled {
			continue
		}
		for _, from := range slices.Sorted(maps.Keys(g.Mappings)) {
			to := g.Mappings[from]
			if owner, ok := bound[from]; ok {
				slog.Warn("[WARN-HOOK] keymap source already bound, skipping",
					"group", g.Name, "combo", from, "boundBy", owner)
				continue
			}
			binding := Binding{Group: g.Name, From: from, To: to}
			id, err := b.engine.AddHotkey(from, b.remap(binding), true)
			if err != nil {
				slog.Warn("[WARN-HOOK] failed to bind keymap entry",
					"group", g.Name, "from", from, "to", to, "error", err)
				continue
			}
			bound[from] = g.Name
			b.handles = append(b.handles, id)
			b.active = append(b.active, binding)
		}
	}
	slog.Debug("[DEBUG-HOOK] keymaps applied", "groups", len(groups), "bound", len(b.active))
	return len(b.active)
}

func (b *Binder) remap(binding Binding) func() {
	return func() {
		if err := b.engine.SendKeys(binding.To); err != nil {
			slog.Warn("[WARN-HOOK] keymap send failed",
				"group", binding.Group, "from", binding.From, "to", binding.To, "error", err)
			return
		}
		if b.onFire != nil {
			b.onFire(binding)
		}
	}
}

// Clear removes every hotkey the binder owns.
func (b *Binder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *Binder) clearLocked() {
	for _, id := range b.handles {
		b.engine.RemoveHotkey(id)
	}
	b.handles = nil
	b.active = nil
}

// Bindings returns the active remaps in registration order.
func (b *Binder) Bindings() []Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.active)
}
