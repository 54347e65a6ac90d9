// Package keys maps platform key codes to canonical lowercase key names and
// parses "mod+mod+key" combo strings.
package keys

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Name is a canonical lowercase key name such as "ctrl", "f5" or "`".
type Name string

// Unknown is returned by Table.Resolve for platform codes without a mapping.
const Unknown Name = "unknown"

// ErrEmptyCombo is returned by ParseCombo when no key token remains after
// splitting on '+'.
var ErrEmptyCombo = errors.New("combo has no keys")

// UnknownKeyError reports a key name that has no injectable platform code.
type UnknownKeyError struct {
	Name Name
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("key %q has no platform code", string(e.Name))
}

// aliases normalizes common spellings to the canonical names produced by the
// code tables. Anything not listed passes through unchanged.
var aliases = map[string]Name{
	"control":   "ctrl",
	"lctrl":     "ctrl",
	"rctrl":     "ctrl_r",
	"escape":    "esc",
	"return":    "enter",
	"plus":      "+",
	"del":       "delete",
	"ins":       "insert",
	"pgup":      "page_up",
	"pageup":    "page_up",
	"pgdn":      "page_down",
	"pagedown":  "page_down",
	"capslock":  "caps_lock",
	"numlock":   "num_lock",
	"option":    "alt",
	"super":     "win",
	"meta":      "win",
	"windows":   "win",
	"command":   "cmd",
	"grave":     "`",
	"backquote": "`",
	"prtsc":     "print_screen",
}

// Normalize lower-cases and trims a single key token and applies aliases.
// A token made only of spaces names the space bar.
func Normalize(token string) Name {
	if token != "" && strings.TrimSpace(token) == "" {
		return "space"
	}
	t := strings.ToLower(strings.TrimSpace(token))
	if alias, ok := aliases[t]; ok {
		return alias
	}
	return Name(t)
}

// Combo is an ordered, duplicate-free list of key names.
type Combo []Name

// ParseCombo splits s on '+' into key names. Empty tokens are dropped; at
// least one key must remain. Names are not checked against any code table:
// a combo naming a key that no table produces simply never matches.
func ParseCombo(s string) (Combo, error) {
	parts := strings.Split(s, "+")
	combo := make(Combo, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		name := Normalize(part)
		if name == "" || slices.Contains(combo, name) {
			continue
		}
		combo = append(combo, name)
	}
	if len(combo) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyCombo, s)
	}
	return combo, nil
}

// Contains reports whether name is part of the combo.
func (c Combo) Contains(name Name) bool {
	return slices.Contains(c, name)
}

// HeldIn reports whether every key of the combo is in held.
func (c Combo) HeldIn(held Set) bool {
	for _, name := range c {
		if !held.Has(name) {
			return false
		}
	}
	return true
}

func (c Combo) String() string {
	parts := make([]string, len(c))
	for i, name := range c {
		parts[i] = string(name)
	}
	return strings.Join(parts, "+")
}

// Set is a set of key names.
type Set map[Name]struct{}

// NewSet builds a set from names, normalizing each one.
func NewSet(names ...Name) Set {
	set := make(Set, len(names))
	for _, name := range names {
		set[Normalize(string(name))] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set. A nil set holds nothing.
func (s Set) Has(name Name) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Name {
	out := make([]Name, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
