package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"quol-input/internal/keys"
	"quol-input/internal/workerutil"
)

var (
	// ErrInjectionUnsupported is returned by SendKeys when the source cannot
	// synthesize input.
	ErrInjectionUnsupported = errors.New("input source does not support injection")
	// ErrStopTimeout is returned by Stop when the hook goroutine did not exit
	// within the configured stop timeout.
	ErrStopTimeout = errors.New("timed out waiting for input hook to stop")
	// ErrCaptureBusy is returned by CaptureNextKey while another capture runs.
	ErrCaptureBusy = errors.New("key capture already in progress")
	// ErrNotRunning is returned by operations that need an installed hook.
	ErrNotRunning = errors.New("input hook is not running")
	// ErrStillStopping is returned by Start while the goroutine of a timed-out
	// Stop has not exited yet.
	ErrStillStopping = errors.New("previous input hook is still shutting down")
)

// State is the lifecycle state of a Manager.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStopTimeout bounds how long Stop waits for the hook goroutine. Zero,
// the default, waits until it exits.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// Manager is the engine façade. All methods are safe for concurrent use.
// Hotkey and listener callbacks run synchronously on the hook goroutine with
// no engine lock held; they may register and remove entries or call SendKeys,
// but must not call Stop.
type Manager struct {
	src         Source
	table       *keys.Table
	stopTimeout time.Duration

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex
	state  atomic.Int32
	handle Handle
	done   chan struct{}

	// mu guards reg, matcher and captureAbort.
	mu           sync.Mutex
	reg          registry
	matcher      comboMatcher
	captureAbort chan struct{}

	injecting atomic.Int32
	capturing atomic.Bool
}

// NewManager returns a stopped Manager reading events from src.
func NewManager(src Source, opts ...Option) *Manager {
	m := &Manager{
		src:     src,
		table:   src.Keys(),
		matcher: newComboMatcher(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Keys returns the key code table of the underlying source.
func (m *Manager) Keys() *keys.Table { return m.table }

type installResult struct {
	handle Handle
	err    error
}

// Start installs the platform hook on a dedicated goroutine and returns once
// the installation has succeeded or failed. Starting a running manager is a
// no-op; starting while a timed-out hook goroutine lingers fails with
// ErrStillStopping until that goroutine exits.
func (m *Manager) Start() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.State() == Running {
		slog.Debug("[DEBUG-HOOK] start ignored, hook already running")
		return nil
	}
	if m.hookAlive() {
		return ErrStillStopping
	}

	m.state.Store(int32(Starting))
	ready := make(chan installResult, 1)
	done := make(chan struct{})
	go m.runHookThread(ready, done)

	res := <-ready
	if res.err != nil {
		<-done
		m.state.Store(int32(Stopped))
		return fmt.Errorf("install input hook: %w", res.err)
	}
	m.handle = res.handle
	m.done = done
	if !m.state.CompareAndSwap(int32(Starting), int32(Running)) {
		// Serve already returned; the hook goroutine reset the state.
		<-done
		m.handle = nil
		return errors.New("install input hook: hook loop exited during start")
	}
	slog.Info("[INFO-HOOK] input hook installed", "platform", m.table.Platform())
	return nil
}

func (m *Manager) hookAlive() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

func (m *Manager) runHookThread(ready chan<- installResult, done chan<- struct{}) {
	defer close(done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle, err := m.src.Install(m.dispatch)
	ready <- installResult{handle: handle, err: err}
	if err != nil {
		return
	}

	serveErr := handle.Serve()
	if m.state.CompareAndSwap(int32(Running), int32(Stopped)) ||
		m.state.CompareAndSwap(int32(Starting), int32(Stopped)) {
		// Serve returned without Stop: the platform tore the hook down.
		slog.Warn("[WARN-HOOK] input hook loop exited unexpectedly", "error", serveErr)
		return
	}
	if serveErr != nil {
		slog.Debug("[DEBUG-HOOK] input hook loop returned error during stop", "error", serveErr)
	}
}

// Stop uninstalls the hook, waits for the hook goroutine to exit and clears
// every hotkey and listener. Stopping a stopped manager only clears, unless a
// previous Stop timed out: then it waits for that goroutine again.
func (m *Manager) Stop() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	defer m.clear()

	if m.State() != Running {
		if m.hookAlive() {
			return m.waitHookExit()
		}
		return nil
	}
	m.state.Store(int32(Stopping))
	defer m.state.Store(int32(Stopped))

	if err := m.handle.Uninstall(); err != nil {
		slog.Warn("[WARN-HOOK] uninstall input hook failed", "error", err)
	}
	return m.waitHookExit()
}

// waitHookExit blocks until the hook goroutine exits or the stop timeout
// elapses. Callers hold lifeMu.
func (m *Manager) waitHookExit() error {
	if m.stopTimeout <= 0 {
		<-m.done
	} else {
		timer := time.NewTimer(m.stopTimeout)
		defer timer.Stop()
		select {
		case <-m.done:
		case <-timer.C:
			slog.Warn("[WARN-HOOK] input hook did not stop in time", "timeout", m.stopTimeout)
			return ErrStopTimeout
		}
	}
	m.handle = nil
	slog.Info("[INFO-HOOK] input hook stopped")
	return nil
}

func (m *Manager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.clear()
	m.matcher.reset()
	if m.captureAbort != nil {
		close(m.captureAbort)
		m.captureAbort = nil
	}
}

// AddHotkey registers fn to run once each time every key of combo becomes
// held. With suppress set, the key event completing the combo is swallowed.
// Key names unknown to the platform are accepted and never match.
func (m *Manager) AddHotkey(combo string, fn func(), suppress bool) (ID, error) {
	parsed, err := keys.ParseCombo(combo)
	if err != nil {
		return ID{}, err
	}
	id := newID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.hotkeys.add(id, &hotkeyEntry{
		id:       id,
		seq:      m.reg.next(),
		combo:    parsed,
		label:    parsed.String(),
		fn:       fn,
		suppress: suppress,
	})
	return id, nil
}

// RemoveHotkey unregisters a hotkey. Unknown ids are ignored.
func (m *Manager) RemoveHotkey(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reg.hotkeys.remove(id) {
		m.matcher.forget(id)
	}
}

// AddKeyPressListener registers fn for every key-down event, repeats
// included. Events for keys in suppressed are swallowed. fn may be nil for a
// listener that only suppresses.
func (m *Manager) AddKeyPressListener(fn KeyFunc, suppressed ...keys.Name) ID {
	return m.addKeyListener(&m.reg.press, fn, suppressed)
}

// RemoveKeyPressListener unregisters a press listener. Unknown ids are ignored.
func (m *Manager) RemoveKeyPressListener(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.press.remove(id)
}

// AddKeyReleaseListener registers fn for every key-up event.
func (m *Manager) AddKeyReleaseListener(fn KeyFunc, suppressed ...keys.Name) ID {
	return m.addKeyListener(&m.reg.release, fn, suppressed)
}

// RemoveKeyReleaseListener unregisters a release listener.
func (m *Manager) RemoveKeyReleaseListener(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.release.remove(id)
}

func (m *Manager) addKeyListener(c *collection[*keyListener], fn KeyFunc, suppressed []keys.Name) ID {
	id := newID()
	m.mu.Lock()
	defer m.mu.Unlock()
	c.add(id, &keyListener{
		id:         id,
		seq:        m.reg.next(),
		fn:         fn,
		suppressed: keys.NewSet(suppressed...),
	})
	return id
}

// AddMouseMoveListener registers fn for pointer moves. Mouse events are never
// swallowed.
func (m *Manager) AddMouseMoveListener(fn MouseMoveFunc) ID {
	id := newID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.moves.add(id, &moveListener{id: id, seq: m.reg.next(), fn: fn})
	return id
}

// RemoveMouseMoveListener unregisters a move listener.
func (m *Manager) RemoveMouseMoveListener(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.moves.remove(id)
}

// AddMouseClickListener registers fn for mouse button presses and releases.
func (m *Manager) AddMouseClickListener(fn MouseClickFunc) ID {
	id := newID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.clicks.add(id, &clickListener{id: id, seq: m.reg.next(), fn: fn})
	return id
}

// RemoveMouseClickListener unregisters a click listener.
func (m *Manager) RemoveMouseClickListener(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.clicks.remove(id)
}

// HeldKeys returns the keys currently held, sorted.
func (m *Manager) HeldKeys() []keys.Name {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matcher.held.Sorted()
}

// ActiveHotkeys returns the hotkeys that fired and are still held, in
// registration order.
func (m *Manager) ActiveHotkeys() []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]ID, 0, len(m.matcher.active))
	for _, h := range m.reg.hotkeys.snapshot() {
		if _, ok := m.matcher.active[h.id]; ok {
			ids = append(ids, h.id)
		}
	}
	return ids
}

// HotkeyCount returns the number of registered hotkeys.
func (m *Manager) HotkeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.hotkeys.len()
}

// Capturing reports whether a CaptureNextKey call is in progress.
func (m *Manager) Capturing() bool { return m.capturing.Load() }

// CaptureNextKey waits for the next physical key press and returns its name.
// The key is not swallowed. Only one capture may run at a time.
func (m *Manager) CaptureNextKey(ctx context.Context) (keys.Name, error) {
	if m.State() != Running {
		return "", ErrNotRunning
	}
	if !m.capturing.CompareAndSwap(false, true) {
		return "", ErrCaptureBusy
	}
	defer m.capturing.Store(false)

	got := make(chan keys.Name, 1)
	aborted := make(chan struct{})
	m.mu.Lock()
	m.captureAbort = aborted
	m.mu.Unlock()
	if m.State() != Running {
		return "", ErrNotRunning
	}

	id := m.AddKeyPressListener(func(key keys.Name) {
		select {
		case got <- key:
		default:
		}
	})
	defer func() {
		m.RemoveKeyPressListener(id)
		m.mu.Lock()
		if m.captureAbort == aborted {
			m.captureAbort = nil
		}
		m.mu.Unlock()
	}()

	select {
	case key := <-got:
		return key, nil
	case <-aborted:
		return "", ErrNotRunning
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// dispatchContext carries per-event state through dispatch.
type dispatchContext struct {
	// injecting is set when the event is the engine's own synthetic output.
	injecting bool
}

// dispatch is the Handler given to the source.
func (m *Manager) dispatch(ev Event) bool {
	// A hook left behind by a timed-out Stop passes everything through.
	if m.State() != Running {
		return false
	}
	dc := dispatchContext{injecting: ev.Injected || m.injecting.Load() > 0}
	return m.handleEvent(dc, ev)
}

func (m *Manager) handleEvent(dc dispatchContext, ev Event) bool {
	if dc.injecting {
		return false
	}
	switch ev.Kind {
	case KeyDown, KeyUp:
		return m.handleKey(ev)
	case MouseMove:
		m.mu.Lock()
		listeners := m.reg.moves.snapshot()
		m.mu.Unlock()
		for _, l := range listeners {
			if l.fn != nil {
				workerutil.SafeCall("mouse move listener", func() { l.fn(ev.X, ev.Y) })
			}
		}
	case MouseButton:
		m.mu.Lock()
		listeners := m.reg.clicks.snapshot()
		m.mu.Unlock()
		for _, l := range listeners {
			if l.fn != nil {
				workerutil.SafeCall("mouse click listener", func() { l.fn(ev.X, ev.Y, ev.Button, ev.Pressed) })
			}
		}
	}
	return false
}

func (m *Manager) handleKey(ev Event) bool {
	key := m.table.Resolve(ev.Code)

	m.mu.Lock()
	var fired []firedHotkey
	var listeners []*keyListener
	if ev.Kind == KeyDown {
		fired = m.matcher.keyDown(key, m.reg.hotkeys.snapshot())
		listeners = m.reg.press.snapshot()
	} else {
		m.matcher.keyUp(key, m.reg.hotkeys.get)
		listeners = m.reg.release.snapshot()
	}
	suppress := decideSuppression(ev.Kind, key, fired, listeners)
	m.mu.Unlock()

	for _, f := range fired {
		slog.Debug("[DEBUG-HOOK] hotkey fired", "combo", f.label, "suppress", f.suppress)
		workerutil.SafeCall("hotkey "+f.label, f.fn)
	}
	for _, l := range listeners {
		if l.fn != nil {
			workerutil.SafeCall("key listener", func() { l.fn(key) })
		}
	}
	return suppress
}

// Snapshot is a point-in-time view of the engine for status reporting.
type Snapshot struct {
	State    State
	Platform string
	Hotkeys  int
	Held     []keys.Name
	Active   int
}

// Snapshot returns the current engine status.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.matcher.held.Sorted()
	return Snapshot{
		State:    m.State(),
		Platform: m.table.Platform(),
		Hotkeys:  m.reg.hotkeys.len(),
		Held:     held,
		Active:   len(m.matcher.active),
	}
}
