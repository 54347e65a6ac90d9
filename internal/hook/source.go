// Package hook is the global input engine: it receives every keyboard and
// mouse event from a platform Source, tracks held keys, fires edge-triggered
// hotkeys and raw listeners, decides whether each event is swallowed, and
// injects synthetic key presses that the engine itself never observes.
//
// The engine is written against the Source interface only. Real sources live
// in internal/platform; internal/hook/hooktest provides a scripted one.
package hook

import "quol-input/internal/keys"

// EventKind classifies a raw input event.
type EventKind int

const (
	KeyDown EventKind = iota + 1
	KeyUp
	MouseMove
	MouseButton
)

func (k EventKind) String() string {
	switch k {
	case KeyDown:
		return "key_down"
	case KeyUp:
		return "key_up"
	case MouseMove:
		return "mouse_move"
	case MouseButton:
		return "mouse_button"
	default:
		return "unknown"
	}
}

// Mouse button names reported in Event.Button.
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
	ButtonX1     = "x1"
	ButtonX2     = "x2"
)

// Event is one raw event as delivered by a Source.
type Event struct {
	Kind EventKind
	// Code is the platform key code (key events only).
	Code uint32
	X, Y int
	// Button and Pressed describe MouseButton events.
	Button  string
	Pressed bool
	// Injected marks events the source recognises as its own synthetic
	// output. They are passed through without dispatch.
	Injected bool
}

// Handler processes one event on the hook goroutine and returns true when
// the event must be swallowed.
type Handler func(Event) bool

// Source installs a platform-level global event hook.
//
// Install is called on a goroutine locked to its OS thread; the returned
// Handle's Serve runs on that same goroutine and blocks until Uninstall is
// called from any other goroutine.
type Source interface {
	Install(h Handler) (Handle, error)
	Keys() *keys.Table
}

// Handle is an installed hook.
type Handle interface {
	Serve() error
	Uninstall() error
}

// Stroke is one synthetic key transition. A zero Code with a non-zero Char
// asks the injector to type a literal character.
type Stroke struct {
	Code uint32
	Char rune
	Down bool
}

// Injector is implemented by sources that can synthesize key events.
type Injector interface {
	Inject(strokes []Stroke) error
}
