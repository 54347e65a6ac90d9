package hook

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"quol-input/internal/keys"
)

// ID identifies a registered hotkey or listener.
type ID uuid.UUID

func newID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero ID, which no registration returns.
func (id ID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// KeyFunc receives the canonical key name of a raw key event.
type KeyFunc func(key keys.Name)

// MouseMoveFunc receives the pointer position in screen coordinates.
type MouseMoveFunc func(x, y int)

// MouseClickFunc receives a button transition at the pointer position.
type MouseClickFunc func(x, y int, button string, pressed bool)

type hotkeyEntry struct {
	id       ID
	seq      uint64
	combo    keys.Combo
	label    string
	fn       func()
	suppress bool
}

type keyListener struct {
	id         ID
	seq        uint64
	fn         KeyFunc
	suppressed keys.Set
}

type moveListener struct {
	id  ID
	seq uint64
	fn  MouseMoveFunc
}

type clickListener struct {
	id  ID
	seq uint64
	fn  MouseClickFunc
}

func (e *hotkeyEntry) order() uint64   { return e.seq }
func (e *keyListener) order() uint64   { return e.seq }
func (e *moveListener) order() uint64  { return e.seq }
func (e *clickListener) order() uint64 { return e.seq }

type sequenced interface{ order() uint64 }

// collection is an id-keyed set of entries with a cached snapshot ordered by
// registration sequence. A snapshot slice is never modified after it has
// been handed out, so dispatch can iterate it after the lock is released.
type collection[E sequenced] struct {
	items       map[ID]E
	version     uint64
	snapVersion uint64
	snap        []E
}

func (c *collection[E]) add(id ID, e E) {
	if c.items == nil {
		c.items = make(map[ID]E)
	}
	c.items[id] = e
	c.version++
}

func (c *collection[E]) remove(id ID) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	c.version++
	return true
}

func (c *collection[E]) get(id ID) (E, bool) {
	e, ok := c.items[id]
	return e, ok
}

func (c *collection[E]) len() int { return len(c.items) }

func (c *collection[E]) snapshot() []E {
	if c.snap != nil && c.snapVersion == c.version {
		return c.snap
	}
	snap := make([]E, 0, len(c.items))
	for _, e := range c.items {
		snap = append(snap, e)
	}
	slices.SortFunc(snap, func(a, b E) int { return cmp.Compare(a.order(), b.order()) })
	c.snap = snap
	c.snapVersion = c.version
	return snap
}

func (c *collection[E]) clear() {
	if len(c.items) == 0 {
		return
	}
	clear(c.items)
	c.version++
}

// registry holds the four independent registration collections. It is
// guarded by Manager.mu together with the matcher.
type registry struct {
	seq     uint64
	hotkeys collection[*hotkeyEntry]
	press   collection[*keyListener]
	release collection[*keyListener]
	moves   collection[*moveListener]
	clicks  collection[*clickListener]
}

func (r *registry) next() uint64 {
	r.seq++
	return r.seq
}

func (r *registry) clear() {
	r.hotkeys.clear()
	r.press.clear()
	r.release.clear()
	r.moves.clear()
	r.clicks.clear()
}
