package keys

// Table is an immutable bidirectional mapping between one platform's key
// codes and canonical names. Several codes may share a name (numpad digits
// resolve like the main row); the reverse lookup keeps the first code listed.
type Table struct {
	platform string
	byCode   map[uint32]Name
	byName   map[Name]uint32
}

type codeName struct {
	code uint32
	name Name
}

func newTable(platform string, pairs []codeName) *Table {
	t := &Table{
		platform: platform,
		byCode:   make(map[uint32]Name, len(pairs)),
		byName:   make(map[Name]uint32, len(pairs)),
	}
	for _, p := range pairs {
		if _, exists := t.byCode[p.code]; !exists {
			t.byCode[p.code] = p.name
		}
		if _, exists := t.byName[p.name]; !exists {
			t.byName[p.name] = p.code
		}
	}
	return t
}

// Platform names the code space ("windows-vk", "evdev", "macos").
func (t *Table) Platform() string { return t.platform }

// Resolve returns the canonical name for code, or Unknown.
func (t *Table) Resolve(code uint32) Name {
	if name, ok := t.byCode[code]; ok {
		return name
	}
	return Unknown
}

// ToPlatform returns the code used to inject name.
func (t *Table) ToPlatform(name Name) (uint32, error) {
	if code, ok := t.byName[name]; ok {
		return code, nil
	}
	return 0, &UnknownKeyError{Name: name}
}

// Len returns the number of distinct codes in the table.
func (t *Table) Len() int { return len(t.byCode) }
