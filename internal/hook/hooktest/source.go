// Package hooktest provides a scripted hook.Source for tests. Events are fed
// through the installed handler synchronously on the caller's goroutine, and
// injected strokes are echoed back through the handler the way an operating
// system would deliver them.
package hooktest

import (
	"errors"
	"sync"
	"sync/atomic"

	"quol-input/internal/hook"
	"quol-input/internal/keys"
)

// Source is a deterministic hook.Source and hook.Injector.
type Source struct {
	table *keys.Table

	mu         sync.Mutex
	handler    hook.Handler
	installErr error
	injectErr  error
	injected   []hook.Stroke
	tagEchoes  bool

	installs atomic.Int32
	serving  atomic.Int32
}

var (
	_ hook.Source   = (*Source)(nil)
	_ hook.Injector = (*Source)(nil)
)

// New returns a Source resolving codes with table. A nil table selects
// keys.WindowsVK.
func New(table *keys.Table) *Source {
	if table == nil {
		table = keys.WindowsVK()
	}
	return &Source{table: table}
}

// Keys implements hook.Source.
func (s *Source) Keys() *keys.Table { return s.table }

// FailInstall makes the next installs fail with err.
func (s *Source) FailInstall(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installErr = err
}

// FailInject makes Inject fail with err after recording the strokes.
func (s *Source) FailInject(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injectErr = err
}

// TagEchoes marks echoed injected events with Event.Injected, as sources
// that can recognise their own output do.
func (s *Source) TagEchoes(tag bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagEchoes = tag
}

// Install implements hook.Source.
func (s *Source) Install(h hook.Handler) (hook.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installErr != nil {
		return nil, s.installErr
	}
	s.installs.Add(1)
	s.handler = h
	return &handle{src: s, stop: make(chan struct{})}, nil
}

// Installs returns how many times Install succeeded.
func (s *Source) Installs() int { return int(s.installs.Load()) }

// Serving returns the number of hook loops currently blocked in Serve.
func (s *Source) Serving() int { return int(s.serving.Load()) }

// Installed reports whether a handler is installed.
func (s *Source) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

type handle struct {
	src      *Source
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *handle) Serve() error {
	h.src.serving.Add(1)
	defer h.src.serving.Add(-1)
	<-h.stop
	return nil
}

func (h *handle) Uninstall() error {
	h.stopOnce.Do(func() {
		h.src.mu.Lock()
		h.src.handler = nil
		h.src.mu.Unlock()
		close(h.stop)
	})
	return nil
}

// Emit delivers ev to the installed handler and returns its suppression
// decision. Without an installed handler the event passes.
func (s *Source) Emit(ev hook.Event) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	return h(ev)
}

// Press emits a key-down for the code of name.
func (s *Source) Press(name keys.Name) bool {
	return s.Emit(hook.Event{Kind: hook.KeyDown, Code: s.code(name)})
}

// Release emits a key-up for the code of name.
func (s *Source) Release(name keys.Name) bool {
	return s.Emit(hook.Event{Kind: hook.KeyUp, Code: s.code(name)})
}

// Move emits a pointer move.
func (s *Source) Move(x, y int) bool {
	return s.Emit(hook.Event{Kind: hook.MouseMove, X: x, Y: y})
}

// Click emits a mouse button transition.
func (s *Source) Click(x, y int, button string, pressed bool) bool {
	return s.Emit(hook.Event{Kind: hook.MouseButton, X: x, Y: y, Button: button, Pressed: pressed})
}

func (s *Source) code(name keys.Name) uint32 {
	code, err := s.table.ToPlatform(name)
	if err != nil {
		panic("hooktest: " + err.Error())
	}
	return code
}

// Inject implements hook.Injector. Strokes are recorded and echoed through
// the handler; literal characters are recorded only.
func (s *Source) Inject(strokes []hook.Stroke) error {
	s.mu.Lock()
	s.injected = append(s.injected, strokes...)
	err := s.injectErr
	tag := s.tagEchoes
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, st := range strokes {
		if st.Code == 0 {
			continue
		}
		kind := hook.KeyUp
		if st.Down {
			kind = hook.KeyDown
		}
		s.Emit(hook.Event{Kind: kind, Code: st.Code, Injected: tag})
	}
	return nil
}

// Injected returns every stroke passed to Inject so far.
func (s *Source) Injected() []hook.Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hook.Stroke, len(s.injected))
	copy(out, s.injected)
	return out
}

// ErrInstall is a ready-made install failure for tests.
var ErrInstall = errors.New("hooktest: install failed")

// ObserveOnly returns a view of s that does not implement hook.Injector.
func (s *Source) ObserveOnly() hook.Source { return observeOnly{s} }

type observeOnly struct{ s *Source }

func (o observeOnly) Install(h hook.Handler) (hook.Handle, error) { return o.s.Install(h) }
func (o observeOnly) Keys() *keys.Table                           { return o.s.Keys() }
