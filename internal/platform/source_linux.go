//go:build linux

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/holoplot/go-evdev"

	"quol-input/internal/hook"
	"quol-input/internal/keys"
)

const busVirtual = 0x06

var mouseButtons = map[evdev.EvCode]string{
	evdev.BTN_LEFT:   hook.ButtonLeft,
	evdev.BTN_RIGHT:  hook.ButtonRight,
	evdev.BTN_MIDDLE: hook.ButtonMiddle,
	evdev.BTN_SIDE:   hook.ButtonX1,
	evdev.BTN_EXTRA:  hook.ButtonX2,
}

type evdevSource struct {
	table *keys.Table
}

func newSource() (hook.Source, error) {
	return &evdevSource{table: keys.Evdev()}, nil
}

func (s *evdevSource) Keys() *keys.Table { return s.table }

// inputDevice is an opened keyboard or pointer device.
type inputDevice struct {
	dev     *evdev.InputDevice
	path    string
	name    string
	grabbed bool
}

// Install opens every keyboard and relative pointer device. When a uinput
// device can be created the physical devices are grabbed, so that only the
// events the engine lets through reach the rest of the system; otherwise the
// source degrades to observing without suppression or injection.
func (s *evdevSource) Install(h hook.Handler) (hook.Handle, error) {
	devices, err := openInputDevices()
	if err != nil {
		return nil, err
	}

	l := &evdevHooks{
		handler: h,
		devices: devices,
		events:  make(chan deviceEvent, 256),
		stop:    make(chan struct{}),
	}

	virt, err := evdev.CreateDevice(VirtualDeviceName, evdev.InputID{BusType: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}, virtualCapabilities(devices, s.table))
	if err != nil {
		slog.Warn("[WARN-HOOK] uinput unavailable, observing without suppression", "error", err)
	} else {
		l.virtual = virt
		for _, d := range devices {
			if err := d.dev.Grab(); err != nil {
				slog.Warn("[WARN-HOOK] grab input device failed", "path", d.path, "name", d.name, "error", err)
				continue
			}
			d.grabbed = true
		}
	}
	setActiveEvdev(l)
	return l, nil
}

func openInputDevices() ([]*inputDevice, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	var devices []*inputDevice
	for _, p := range paths {
		if p.Name == VirtualDeviceName {
			continue
		}
		dev, err := evdev.Open(p.Path)
		if err != nil {
			slog.Debug("[DEBUG-HOOK] skip input device", "path", p.Path, "error", err)
			continue
		}
		if !isKeyboardOrPointer(dev) {
			dev.Close()
			continue
		}
		devices = append(devices, &inputDevice{dev: dev, path: p.Path, name: p.Name})
	}
	if len(devices) == 0 {
		return nil, errors.New("no readable keyboard or pointer devices under /dev/input")
	}
	return devices, nil
}

func isKeyboardOrPointer(dev *evdev.InputDevice) bool {
	types := dev.CapableTypes()
	if slices.Contains(types, evdev.EV_ABS) {
		// Touchpads and tablets need absolute axis setup on the virtual
		// device; leave them alone.
		return false
	}
	if slices.Contains(types, evdev.EV_KEY) && slices.Contains(dev.CapableEvents(evdev.EV_KEY), evdev.KEY_A) {
		return true
	}
	return slices.Contains(types, evdev.EV_REL) && slices.Contains(dev.CapableEvents(evdev.EV_REL), evdev.REL_X)
}

// virtualCapabilities is the union of what the physical devices report plus
// every key in the table, so injection can type any named key.
func virtualCapabilities(devices []*inputDevice, table *keys.Table) map[evdev.EvType][]evdev.EvCode {
	keySet := make(map[evdev.EvCode]struct{})
	relSet := make(map[evdev.EvCode]struct{})
	for _, d := range devices {
		for _, c := range d.dev.CapableEvents(evdev.EV_KEY) {
			keySet[c] = struct{}{}
		}
		for _, c := range d.dev.CapableEvents(evdev.EV_REL) {
			relSet[c] = struct{}{}
		}
	}
	for code := range evdev.EvCode(evdev.KEY_MAX) {
		if table.Resolve(uint32(code)) != keys.Unknown {
			keySet[code] = struct{}{}
		}
	}
	caps := map[evdev.EvType][]evdev.EvCode{evdev.EV_KEY: sortedCodes(keySet)}
	if len(relSet) > 0 {
		caps[evdev.EV_REL] = sortedCodes(relSet)
	}
	return caps
}

func sortedCodes(set map[evdev.EvCode]struct{}) []evdev.EvCode {
	out := make([]evdev.EvCode, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

type deviceEvent struct {
	ev  evdev.InputEvent
	src *inputDevice
}

type evdevHooks struct {
	handler hook.Handler
	devices []*inputDevice
	virtual *evdev.InputDevice

	events   chan deviceEvent
	stop     chan struct{}
	stopOnce sync.Once
	readers  sync.WaitGroup

	// writeMu serializes writes to the virtual device between forwarding on
	// the hook goroutine and injection from callers.
	writeMu sync.Mutex
	// pointer position accumulated from relative motion.
	x, y int
}

var (
	activeMu    sync.Mutex
	activeEvdev *evdevHooks
)

func setActiveEvdev(l *evdevHooks) {
	activeMu.Lock()
	defer activeMu.Unlock()
	activeEvdev = l
}

func currentEvdev() *evdevHooks {
	activeMu.Lock()
	defer activeMu.Unlock()
	return activeEvdev
}

// Serve fans device reads into one channel and processes events strictly in
// arrival order on the calling goroutine.
func (l *evdevHooks) Serve() error {
	for _, d := range l.devices {
		l.readers.Go(func() { l.readDevice(d) })
	}
	defer l.release()

	for {
		select {
		case <-l.stop:
			return nil
		case de := <-l.events:
			l.process(de)
		}
	}
}

func (l *evdevHooks) readDevice(d *inputDevice) {
	for {
		ev, err := d.dev.ReadOne()
		if err != nil {
			select {
			case <-l.stop:
			default:
				slog.Warn("[WARN-HOOK] input device read failed", "path", d.path, "error", err)
			}
			return
		}
		select {
		case l.events <- deviceEvent{ev: *ev, src: d}:
		case <-l.stop:
			return
		}
	}
}

func (l *evdevHooks) process(de deviceEvent) {
	ev := de.ev
	switch ev.Type {
	case evdev.EV_KEY:
		if button, ok := mouseButtons[ev.Code]; ok {
			l.handler(hook.Event{Kind: hook.MouseButton, X: l.x, Y: l.y, Button: button, Pressed: ev.Value != 0})
			break
		}
		kind := hook.KeyDown
		if ev.Value == 0 {
			kind = hook.KeyUp
		}
		if l.handler(hook.Event{Kind: kind, Code: uint32(ev.Code)}) {
			return
		}
	case evdev.EV_REL:
		switch ev.Code {
		case evdev.REL_X:
			l.x += int(ev.Value)
		case evdev.REL_Y:
			l.y += int(ev.Value)
		default:
			if de.src.grabbed {
				l.forward(ev)
			}
			return
		}
		l.handler(hook.Event{Kind: hook.MouseMove, X: l.x, Y: l.y})
	}
	if de.src.grabbed {
		l.forward(ev)
	}
}

// forward replays an event from a grabbed device on the virtual device.
func (l *evdevHooks) forward(ev evdev.InputEvent) {
	if l.virtual == nil {
		return
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.virtual.WriteOne(&ev); err != nil {
		slog.Debug("[DEBUG-HOOK] forward input event failed", "type", ev.Type, "code", ev.Code, "error", err)
	}
}

func (l *evdevHooks) Uninstall() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

func (l *evdevHooks) release() {
	var errs []error
	for _, d := range l.devices {
		if !d.grabbed {
			continue
		}
		if err := d.dev.Ungrab(); err != nil {
			errs = append(errs, fmt.Errorf("ungrab %s: %w", d.path, err))
		}
	}
	for _, d := range l.devices {
		if err := d.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d.path, err))
		}
	}
	l.readers.Wait()
	if l.virtual != nil {
		l.writeMu.Lock()
		if err := l.virtual.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close virtual device: %w", err))
		}
		l.virtual = nil
		l.writeMu.Unlock()
	}
	activeMu.Lock()
	if activeEvdev == l {
		activeEvdev = nil
	}
	activeMu.Unlock()
	if err := errors.Join(errs...); err != nil {
		slog.Warn("[WARN-HOOK] releasing input devices", "error", err)
	}
}

// Inject writes strokes to the virtual device. The virtual device is never
// opened as an input, so injected keys are not observed by the engine.
// Literal characters have no evdev representation and are skipped.
func (s *evdevSource) Inject(strokes []hook.Stroke) error {
	l := currentEvdev()
	if l == nil {
		return hook.ErrNotRunning
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.virtual == nil {
		return errors.New("no uinput device available for injection")
	}
	for _, st := range strokes {
		if st.Code == 0 {
			slog.Warn("[WARN-HOOK] literal character injection unsupported on evdev", "char", string(st.Char))
			continue
		}
		value := int32(0)
		if st.Down {
			value = 1
		}
		if err := l.virtual.WriteOne(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.EvCode(st.Code), Value: value}); err != nil {
			return fmt.Errorf("write key event: %w", err)
		}
		if err := l.virtual.WriteOne(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}); err != nil {
			return fmt.Errorf("write sync event: %w", err)
		}
	}
	return nil
}
