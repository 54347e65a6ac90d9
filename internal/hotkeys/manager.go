// Package hotkeys manages the single application toggle hotkey: the key that
// shows or hides the main window. It sits on top of the hook engine and
// swaps the registration when the configured key changes.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"quol-input/internal/hook"
	"quol-input/internal/keys"
)

// Registrar is the part of the hook engine the toggle needs.
type Registrar interface {
	AddHotkey(combo string, fn func(), suppress bool) (hook.ID, error)
	RemoveHotkey(id hook.ID)
}

// activeHotkey is a live registration. When non-nil in Manager, id refers to
// a hotkey registered with the engine.
type activeHotkey struct {
	id      hook.ID
	binding string
}

// Manager manages one global hotkey registration.
type Manager struct {
	reg Registrar

	mu     sync.Mutex
	active *activeHotkey // nil when no hotkey is registered
}

// NewManager creates a hotkey manager registering through reg.
func NewManager(reg Registrar) *Manager {
	return &Manager{reg: reg}
}

// Start registers key as the toggle hotkey and binds onTrigger to it,
// replacing any previous binding. The key event completing the combo is
// suppressed. On a parse or registration error the previous binding stays.
func (m *Manager) Start(key string, onTrigger func()) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	combo, err := keys.ParseCombo(key)
	if err != nil {
		return fmt.Errorf("parse toggle key %q: %w", key, err)
	}
	binding := combo.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.binding == binding {
		// Same key: re-register anyway so the new callback is used.
		m.reg.RemoveHotkey(m.active.id)
		m.active = nil
	}

	id, err := m.reg.AddHotkey(binding, onTrigger, true)
	if err != nil {
		return fmt.Errorf("register toggle key %q: %w", binding, err)
	}
	if m.active != nil {
		m.reg.RemoveHotkey(m.active.id)
		slog.Debug("[DEBUG-HOOK] toggle key replaced", "old", m.active.binding, "new", binding)
	}
	m.active = &activeHotkey{id: id, binding: binding}
	slog.Info("[INFO-HOOK] toggle key registered", "binding", binding)
	return nil
}

// Stop unregisters the active hotkey.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	m.reg.RemoveHotkey(m.active.id)
	m.active = nil
	return nil
}

// ActiveBinding returns the normalized binding string for the active hotkey.
func (m *Manager) ActiveBinding() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.binding
}
