package keymap

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"quol-input/internal/config"
	"quol-input/internal/hook"
	"quol-input/internal/hook/hooktest"
	"quol-input/internal/keys"
	"quol-input/internal/testutil"
)

func startEngine(t *testing.T) (*hook.Manager, *hooktest.Source) {
	t.Helper()
	src := hooktest.New(nil)
	m := hook.NewManager(src)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := m.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return m, src
}

func downCodes(strokes []hook.Stroke) []uint32 {
	var out []uint32
	for _, s := range strokes {
		if s.Down {
			out = append(out, s.Code)
		}
	}
	return out
}

func mustCode(t *testing.T, src *hooktest.Source, name string) uint32 {
	t.Helper()
	code, err := src.Keys().ToPlatform(keys.Name(name))
	if err != nil {
		t.Fatalf("ToPlatform(%q) error = %v", name, err)
	}
	return code
}

func TestApplyRemapsAndSuppresses(t *testing.T) {
	engine, src := startEngine(t)

	var mu sync.Mutex
	var fired []Binding
	binder := NewBinder(engine, func(b Binding) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, b)
	})

	n := binder.Apply([]config.KeymapGroup{
		{Name: "editing", Enabled: true, Mappings: map[string]string{"caps_lock": "esc"}},
	})
	if n != 1 {
		t.Fatalf("Apply() = %d, want 1", n)
	}

	if suppressed := src.Press("caps_lock"); !suppressed {
		t.Fatal("source key was not suppressed")
	}
	if got, want := downCodes(src.Injected()), []uint32{mustCode(t, src, "esc")}; !slices.Equal(got, want) {
		t.Fatalf("injected downs = %v, want %v", got, want)
	}

	mu.Lock()
	defer mu.Unlock()
	want := Binding{Group: "editing", From: "caps_lock", To: "esc"}
	if len(fired) != 1 || fired[0] != want {
		t.Fatalf("fired = %+v, want [%+v]", fired, want)
	}
}

func TestApplySkipsDisabledAndDuplicateSources(t *testing.T) {
	engine, _ := startEngine(t)
	binder := NewBinder(engine, nil)

	n := binder.Apply([]config.KeymapGroup{
		{Name: "off", Enabled: false, Mappings: map[string]string{"f1": "f2"}},
		{Name: "first", Enabled: true, Mappings: map[string]string{"f3": "f4", "f5": "f6"}},
		{Name: "second", Enabled: true, Mappings: map[string]string{"f3": "f7"}},
	})
	if n != 2 {
		t.Fatalf("Apply() = %d, want 2", n)
	}
	want := []Binding{
		{Group: "first", From: "f3", To: "f4"},
		{Group: "first", From: "f5", To: "f6"},
	}
	if got := binder.Bindings(); !slices.Equal(got, want) {
		t.Fatalf("Bindings() = %+v, want %+v", got, want)
	}
	if got := engine.HotkeyCount(); got != 2 {
		t.Fatalf("HotkeyCount() = %d, want 2", got)
	}
}

func TestApplyReplacesPreviousBindings(t *testing.T) {
	engine, src := startEngine(t)
	binder := NewBinder(engine, nil)

	binder.Apply([]config.KeymapGroup{
		{Name: "a", Enabled: true, Mappings: map[string]string{"f1": "f2"}},
	})
	binder.Apply([]config.KeymapGroup{
		{Name: "b", Enabled: true, Mappings: map[string]string{"f3": "f4"}},
	})
	if got := engine.HotkeyCount(); got != 1 {
		t.Fatalf("HotkeyCount() = %d, want 1", got)
	}

	if suppressed := src.Press("f1"); suppressed {
		t.Fatal("old mapping still suppresses")
	}
	src.Release("f1")
	if got := src.Injected(); len(got) != 0 {
		t.Fatalf("old mapping injected %v", got)
	}
}

func TestClearRemovesOwnedHotkeysOnly(t *testing.T) {
	engine, _ := startEngine(t)
	if _, err := engine.AddHotkey("f9", func() {}, false); err != nil {
		t.Fatalf("AddHotkey() error = %v", err)
	}
	binder := NewBinder(engine, nil)
	binder.Apply([]config.KeymapGroup{
		{Name: "g", Enabled: true, Mappings: map[string]string{"f1": "f2", "f3": "f4"}},
	})
	if got := engine.HotkeyCount(); got != 3 {
		t.Fatalf("HotkeyCount() = %d, want 3", got)
	}

	binder.Clear()
	if got := engine.HotkeyCount(); got != 1 {
		t.Fatalf("HotkeyCount() after Clear = %d, want 1", got)
	}
	if got := binder.Bindings(); len(got) != 0 {
		t.Fatalf("Bindings() after Clear = %+v", got)
	}
}

// fakeEngine fails registration for one combo and sending for another.
type fakeEngine struct {
	mu       sync.Mutex
	failAdd  string
	failSend string
	added    map[hook.ID]func()
	combos   map[string]hook.ID
	next     byte
}

var errFake = errors.New("fake failure")

func newFakeEngine() *fakeEngine {
	return &fakeEngine{added: make(map[hook.ID]func()), combos: make(map[string]hook.ID)}
}

func (f *fakeEngine) AddHotkey(combo string, fn func(), _ bool) (hook.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if combo == f.failAdd {
		return hook.ID{}, errFake
	}
	f.next++
	var id hook.ID
	id[0] = f.next
	f.added[id] = fn
	f.combos[combo] = id
	return id, nil
}

func (f *fakeEngine) RemoveHotkey(id hook.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.added, id)
}

func (f *fakeEngine) SendKeys(combo string) error {
	if combo == f.failSend {
		return errFake
	}
	return nil
}

func (f *fakeEngine) fire(combo string) {
	f.mu.Lock()
	fn := f.added[f.combos[combo]]
	f.mu.Unlock()
	fn()
}

func TestApplyLogsAndSkipsFailures(t *testing.T) {
	logs := testutil.CaptureLogBuffer(t, slog.LevelDebug)
	engine := newFakeEngine()
	engine.failAdd = "f1"
	engine.failSend = "f6"

	var fired int
	binder := NewBinder(engine, func(Binding) { fired++ })
	n := binder.Apply([]config.KeymapGroup{
		{Name: "g", Enabled: true, Mappings: map[string]string{"f1": "f2", "f3": "f4", "f5": "f6"}},
	})
	if n != 2 {
		t.Fatalf("Apply() = %d, want 2", n)
	}

	engine.fire("f3")
	engine.fire("f5")
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 (failed sends are not reported)", fired)
	}
	out := logs.String()
	for _, want := range []string{"failed to bind keymap entry", "keymap send failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("logs missing %q:\n%s", want, out)
		}
	}
}
