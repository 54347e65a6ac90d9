//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"

	"quol-input/internal/hook"
	"quol-input/internal/keys"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procSendInput           = user32.NewProc("SendInput")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C

	pmNoRemove = 0x0000

	llkhfInjected = 0x00000010

	inputKeyboard        = 1
	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	keyeventfUnicode     = 0x0004

	// injectMarker tags our SendInput events in dwExtraInfo so the hook can
	// recognise them after SendKeys has returned.
	injectMarker uintptr = 0x51554F4C
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msllHookStruct struct {
	X, Y        int32
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// winMsg mirrors the Win32 MSG struct.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	x, y     int32
	lPrivate uint32
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// keyboardInputRecord mirrors INPUT for INPUT_KEYBOARD. The trailing pad
// brings it to the size of the MOUSEINPUT arm of the union.
type keyboardInputRecord struct {
	typ uint32
	ki  keybdInput
	_   [8]byte
}

// Virtual keys that need KEYEVENTF_EXTENDEDKEY to be injected correctly.
var extendedVKs = map[uint32]bool{
	0x21: true, 0x22: true, 0x23: true, 0x24: true, // page up/down, end, home
	0x25: true, 0x26: true, 0x27: true, 0x28: true, // arrows
	0x2D: true, 0x2E: true, // insert, delete
	0x5B: true, 0x5C: true, 0x5D: true, // win, win_r, menu
	0x6F: true, 0x90: true, // divide, num lock
	0xA3: true, 0xA5: true, // right ctrl, right alt
}

// The hook procedures are package-level because windows.NewCallback slots
// are a finite per-process resource. Only one installation is live at once.
var (
	activeHooks atomic.Pointer[lowLevelHooks]

	keyboardCallback = sync.OnceValue(func() uintptr { return windows.NewCallback(keyboardProc) })
	mouseCallback    = sync.OnceValue(func() uintptr { return windows.NewCallback(mouseProc) })
)

type windowsSource struct {
	table *keys.Table
}

func newSource() (hook.Source, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	return &windowsSource{table: keys.WindowsVK()}, nil
}

func (s *windowsSource) Keys() *keys.Table { return s.table }

// Install sets both low-level hooks on the calling thread, which must then
// pump messages in Serve.
func (s *windowsSource) Install(h hook.Handler) (hook.Handle, error) {
	if activeHooks.Load() != nil {
		return nil, errors.New("low-level hooks already installed in this process")
	}

	// PeekMessageW creates the thread message queue so PostThreadMessageW in
	// Uninstall can deliver WM_QUIT.
	var qmsg winMsg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)

	hooks := &lowLevelHooks{handler: h, threadID: windows.GetCurrentThreadId()}
	activeHooks.Store(hooks)

	kb, _, kbErr := procSetWindowsHookExW.Call(whKeyboardLL, keyboardCallback(), 0, 0)
	if kb == 0 {
		activeHooks.Store(nil)
		return nil, fmt.Errorf("SetWindowsHookExW(WH_KEYBOARD_LL): %w", kbErr)
	}
	ms, _, msErr := procSetWindowsHookExW.Call(whMouseLL, mouseCallback(), 0, 0)
	if ms == 0 {
		procUnhookWindowsHookEx.Call(kb)
		activeHooks.Store(nil)
		return nil, fmt.Errorf("SetWindowsHookExW(WH_MOUSE_LL): %w", msErr)
	}
	hooks.keyboard, hooks.mouse = kb, ms
	return hooks, nil
}

type lowLevelHooks struct {
	handler  hook.Handler
	threadID uint32
	keyboard uintptr
	mouse    uintptr
	quitOnce sync.Once
}

// Serve pumps the thread message queue until WM_QUIT. Low-level hook
// callbacks are delivered from inside GetMessageW.
func (l *lowLevelHooks) Serve() error {
	defer func() {
		procUnhookWindowsHookEx.Call(l.mouse)
		procUnhookWindowsHookEx.Call(l.keyboard)
		activeHooks.CompareAndSwap(l, nil)
	}()
	for {
		var msg winMsg
		ret, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			return fmt.Errorf("GetMessageW: %w", err)
		case 0:
			return nil
		}
	}
}

func (l *lowLevelHooks) Uninstall() error {
	var err error
	l.quitOnce.Do(func() {
		ret, _, callErr := procPostThreadMessageW.Call(uintptr(l.threadID), wmQuit, 0, 0)
		if ret == 0 {
			err = fmt.Errorf("PostThreadMessageW(WM_QUIT): %w", callErr)
		}
	})
	return err
}

func callNext(nCode int, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	hooks := activeHooks.Load()
	if nCode < 0 || hooks == nil {
		return callNext(nCode, wParam, lParam)
	}
	kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))

	var kind hook.EventKind
	switch wParam {
	case wmKeyDown, wmSysKeyDown:
		kind = hook.KeyDown
	case wmKeyUp, wmSysKeyUp:
		kind = hook.KeyUp
	default:
		return callNext(nCode, wParam, lParam)
	}

	ev := hook.Event{
		Kind:     kind,
		Code:     kb.VkCode,
		Injected: kb.Flags&llkhfInjected != 0 && kb.DwExtraInfo == injectMarker,
	}
	if hooks.handler(ev) {
		return 1
	}
	return callNext(nCode, wParam, lParam)
}

func mouseProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	hooks := activeHooks.Load()
	if nCode < 0 || hooks == nil {
		return callNext(nCode, wParam, lParam)
	}
	ms := (*msllHookStruct)(unsafe.Pointer(lParam))
	ev := hook.Event{X: int(ms.X), Y: int(ms.Y)}

	switch wParam {
	case wmMouseMove:
		ev.Kind = hook.MouseMove
	case wmLButtonDown, wmLButtonUp:
		ev.Kind, ev.Button, ev.Pressed = hook.MouseButton, hook.ButtonLeft, wParam == wmLButtonDown
	case wmRButtonDown, wmRButtonUp:
		ev.Kind, ev.Button, ev.Pressed = hook.MouseButton, hook.ButtonRight, wParam == wmRButtonDown
	case wmMButtonDown, wmMButtonUp:
		ev.Kind, ev.Button, ev.Pressed = hook.MouseButton, hook.ButtonMiddle, wParam == wmMButtonDown
	case wmXButtonDown, wmXButtonUp:
		ev.Kind, ev.Pressed = hook.MouseButton, wParam == wmXButtonDown
		ev.Button = hook.ButtonX1
		if ms.MouseData>>16 == 2 {
			ev.Button = hook.ButtonX2
		}
	default:
		return callNext(nCode, wParam, lParam)
	}
	hooks.handler(ev)
	return callNext(nCode, wParam, lParam)
}

// Inject sends strokes in a single SendInput call so they cannot interleave
// with physical input.
func (s *windowsSource) Inject(strokes []hook.Stroke) error {
	inputs := make([]keyboardInputRecord, 0, len(strokes))
	for _, st := range strokes {
		if st.Code == 0 {
			for _, unit := range utf16.Encode([]rune{st.Char}) {
				inputs = append(inputs, unicodeInput(unit, st.Down))
			}
			continue
		}
		flags := uint32(0)
		if !st.Down {
			flags |= keyeventfKeyUp
		}
		if extendedVKs[st.Code] {
			flags |= keyeventfExtendedKey
		}
		inputs = append(inputs, keyboardInputRecord{
			typ: inputKeyboard,
			ki:  keybdInput{wVk: uint16(st.Code), dwFlags: flags, dwExtraInfo: injectMarker},
		})
	}
	if len(inputs) == 0 {
		return nil
	}

	sent, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(sent) != len(inputs) {
		return fmt.Errorf("SendInput sent %d of %d events: %w", sent, len(inputs), err)
	}
	slog.Debug("[DEBUG-HOOK] injected key strokes", "count", len(inputs))
	return nil
}

func unicodeInput(unit uint16, down bool) keyboardInputRecord {
	flags := uint32(keyeventfUnicode)
	if !down {
		flags |= keyeventfKeyUp
	}
	return keyboardInputRecord{
		typ: inputKeyboard,
		ki:  keybdInput{wScan: unit, dwFlags: flags, dwExtraInfo: injectMarker},
	}
}
