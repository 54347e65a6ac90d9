// Package platform provides the operating-system input sources behind
// hook.Source:
//
//   - Windows: WH_KEYBOARD_LL / WH_MOUSE_LL hooks, SendInput injection.
//   - Linux: evdev devices grabbed exclusively; unsuppressed events and
//     injected keys are written to a uinput device.
//   - macOS: libuiohook through gohook; observe-only, so suppression and
//     injection are unavailable.
package platform

import (
	"errors"

	"quol-input/internal/hook"
)

// ErrUnsupported is returned by NewSource on platforms without a source.
var ErrUnsupported = errors.New("global input hooks are not supported on this platform")

// VirtualDeviceName is the name of the uinput device created on Linux. Input
// devices with this name are never grabbed.
const VirtualDeviceName = "quol-input virtual keyboard"

// Capabilities describes what a platform source can do.
type Capabilities struct {
	Suppress bool
	Inject   bool
}

// Describe reports the capabilities of src.
func Describe(src hook.Source) Capabilities {
	_, inject := src.(hook.Injector)
	caps := Capabilities{Inject: inject, Suppress: true}
	if o, ok := src.(interface{ ObserveOnly() bool }); ok && o.ObserveOnly() {
		caps.Suppress = false
	}
	return caps
}

// NewSource returns the input source for the running platform.
func NewSource() (hook.Source, error) {
	return newSource()
}
