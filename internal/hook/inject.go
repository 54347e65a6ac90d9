package hook

import (
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"

	"quol-input/internal/keys"
)

// SendKeys presses every key of combo left to right and releases them in
// reverse order. Keys without a platform code are typed as literal
// characters when they are a single character, and skipped otherwise.
//
// The engine ignores its own strokes: events observed while SendKeys runs,
// and events the source tags as injected, bypass matching and listeners.
func (m *Manager) SendKeys(combo string) error {
	injector, ok := m.src.(Injector)
	if !ok {
		return ErrInjectionUnsupported
	}
	parsed, err := keys.ParseCombo(combo)
	if err != nil {
		return fmt.Errorf("send keys: %w", err)
	}
	strokes := buildStrokes(m.table, parsed)
	if len(strokes) == 0 {
		return nil
	}

	m.injecting.Add(1)
	defer m.injecting.Add(-1)
	if err := injector.Inject(strokes); err != nil {
		return fmt.Errorf("inject %q: %w", parsed.String(), err)
	}
	return nil
}

func buildStrokes(table *keys.Table, combo keys.Combo) []Stroke {
	downs := make([]Stroke, 0, len(combo))
	for _, name := range combo {
		code, err := table.ToPlatform(name)
		if err == nil {
			downs = append(downs, Stroke{Code: code, Down: true})
			continue
		}
		if utf8.RuneCountInString(string(name)) == 1 {
			r, _ := utf8.DecodeRuneInString(string(name))
			downs = append(downs, Stroke{Char: r, Down: true})
			continue
		}
		slog.Warn("[WARN-HOOK] skipping key without platform code",
			"key", name,
			"platform", table.Platform(),
			"error", err,
		)
	}

	strokes := make([]Stroke, 0, 2*len(downs))
	strokes = append(strokes, downs...)
	for _, s := range slices.Backward(downs) {
		s.Down = false
		strokes = append(strokes, s)
	}
	return strokes
}
