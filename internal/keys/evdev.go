package keys

import (
	"strconv"
	"sync"
)

func fkey(n uint32) Name {
	return Name("f" + strconv.FormatUint(uint64(n), 10))
}

// Linux input event codes (linux/input-event-codes.h).
var evdevPairs = func() []codeName {
	pairs := []codeName{
		{1, "esc"},
		{11, "0"},
		{12, "-"},
		{13, "="},
		{14, "backspace"},
		{15, "tab"},
		{26, "["},
		{27, "]"},
		{28, "enter"},
		{29, "ctrl"},
		{39, ";"},
		{40, "'"},
		{41, "`"},
		{42, "shift"},
		{43, "\\"},
		{51, ","},
		{52, "."},
		{53, "/"},
		{54, "shift_r"},
		{55, "*"},
		{56, "alt"},
		{57, "space"},
		{58, "caps_lock"},
		{69, "num_lock"},
		{70, "scroll_lock"},
		{74, "-"},
		{78, "+"},
		{83, "."},
		{87, "f11"},
		{88, "f12"},
		{96, "enter"},
		{97, "ctrl_r"},
		{98, "/"},
		{99, "print_screen"},
		{100, "alt_r"},
		{102, "home"},
		{103, "up"},
		{104, "page_up"},
		{105, "left"},
		{106, "right"},
		{107, "end"},
		{108, "down"},
		{109, "page_down"},
		{110, "insert"},
		{111, "delete"},
		{119, "pause"},
		{125, "win"},
		{126, "win_r"},
		{127, "menu"},
	}
	// KEY_1..KEY_9
	for i := uint32(0); i < 9; i++ {
		pairs = append(pairs, codeName{2 + i, Name(rune('1' + i))})
	}
	rows := []struct {
		first uint32
		keys  string
	}{
		{16, "qwertyuiop"},
		{30, "asdfghjkl"},
		{44, "zxcvbnm"},
	}
	for _, row := range rows {
		for i, r := range row.keys {
			pairs = append(pairs, codeName{row.first + uint32(i), Name(r)})
		}
	}
	// KEY_F1..KEY_F10
	for i := uint32(0); i < 10; i++ {
		pairs = append(pairs, codeName{59 + i, fkey(i + 1)})
	}
	// KEY_F13..KEY_F24
	for i := uint32(0); i < 12; i++ {
		pairs = append(pairs, codeName{183 + i, fkey(i + 13)})
	}
	// Keypad digits, after the main row so injection prefers the main row.
	keypad := map[uint32]Name{
		71: "7", 72: "8", 73: "9",
		75: "4", 76: "5", 77: "6",
		79: "1", 80: "2", 81: "3",
		82: "0",
	}
	for _, code := range []uint32{71, 72, 73, 75, 76, 77, 79, 80, 81, 82} {
		pairs = append(pairs, codeName{code, keypad[code]})
	}
	return pairs
}()

var evdev = sync.OnceValue(func() *Table {
	return newTable("evdev", evdevPairs)
})

// Evdev returns the table for Linux evdev key codes.
func Evdev() *Table { return evdev() }
