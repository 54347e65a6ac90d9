//go:build darwin

package platform

import (
	"log/slog"
	"sync"

	gohook "github.com/robotn/gohook"

	"quol-input/internal/hook"
	"quol-input/internal/keys"
)

var gohookButtons = map[uint16]string{
	1: hook.ButtonLeft,
	2: hook.ButtonRight,
	3: hook.ButtonMiddle,
	4: hook.ButtonX1,
	5: hook.ButtonX2,
}

// uiohookSource observes input through libuiohook's event tap. The tap is
// listen-only, so handler decisions cannot swallow events and there is no
// injector.
type uiohookSource struct {
	table *keys.Table
}

func newSource() (hook.Source, error) {
	slog.Warn("[WARN-HOOK] macOS input source is observe-only: suppression and injection are unavailable")
	return &uiohookSource{table: keys.MacOS()}, nil
}

func (s *uiohookSource) Keys() *keys.Table { return s.table }

// ObserveOnly reports that handler decisions are not enforced.
func (s *uiohookSource) ObserveOnly() bool { return true }

func (s *uiohookSource) Install(h hook.Handler) (hook.Handle, error) {
	return &uiohookHandle{handler: h, events: gohook.Start(), stop: make(chan struct{})}, nil
}

type uiohookHandle struct {
	handler  hook.Handler
	events   chan gohook.Event
	stop     chan struct{}
	stopOnce sync.Once
}

func (u *uiohookHandle) Serve() error {
	for {
		select {
		case <-u.stop:
			return nil
		case ev, ok := <-u.events:
			if !ok {
				return nil
			}
			u.process(ev)
		}
	}
}

func (u *uiohookHandle) process(ev gohook.Event) {
	switch ev.Kind {
	case gohook.KeyHold:
		// libuiohook reports physical presses as KeyHold; KeyDown is the
		// synthesized "typed" event.
		u.handler(hook.Event{Kind: hook.KeyDown, Code: uint32(ev.Rawcode)})
	case gohook.KeyUp:
		u.handler(hook.Event{Kind: hook.KeyUp, Code: uint32(ev.Rawcode)})
	case gohook.MouseMove, gohook.MouseDrag:
		u.handler(hook.Event{Kind: hook.MouseMove, X: int(ev.X), Y: int(ev.Y)})
	case gohook.MouseHold, gohook.MouseUp:
		button, ok := gohookButtons[ev.Button]
		if !ok {
			return
		}
		u.handler(hook.Event{
			Kind:    hook.MouseButton,
			X:       int(ev.X),
			Y:       int(ev.Y),
			Button:  button,
			Pressed: ev.Kind == gohook.MouseHold,
		})
	}
}

func (u *uiohookHandle) Uninstall() error {
	u.stopOnce.Do(func() {
		close(u.stop)
		gohook.End()
	})
	return nil
}
