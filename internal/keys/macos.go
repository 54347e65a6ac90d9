package keys

import "sync"

// macOS virtual key codes (kVK_* in HIToolbox/Events.h).
var macOSPairs = func() []codeName {
	pairs := []codeName{
		{36, "enter"},
		{48, "tab"},
		{49, "space"},
		{51, "backspace"},
		{53, "esc"},
		{117, "delete"},
		{114, "insert"},
		{55, "cmd"},
		{54, "cmd_r"},
		{56, "shift"},
		{60, "shift_r"},
		{57, "caps_lock"},
		{58, "alt"},
		{61, "alt_r"},
		{59, "ctrl"},
		{62, "ctrl_r"},
		{115, "home"},
		{116, "page_up"},
		{119, "end"},
		{121, "page_down"},
		{123, "left"},
		{124, "right"},
		{125, "down"},
		{126, "up"},
		{24, "="},
		{27, "-"},
		{30, "]"},
		{33, "["},
		{39, "'"},
		{41, ";"},
		{42, "\\"},
		{43, ","},
		{44, "/"},
		{47, "."},
		{50, "`"},
	}
	letters := map[uint32]Name{
		0: "a", 1: "s", 2: "d", 3: "f", 4: "h", 5: "g", 6: "z", 7: "x",
		8: "c", 9: "v", 11: "b", 12: "q", 13: "w", 14: "e", 15: "r",
		16: "y", 17: "t", 31: "o", 32: "u", 34: "i", 35: "p", 37: "l",
		38: "j", 40: "k", 45: "n", 46: "m",
		18: "1", 19: "2", 20: "3", 21: "4", 23: "5", 22: "6", 26: "7",
		28: "8", 25: "9", 29: "0",
	}
	for code := uint32(0); code <= 50; code++ {
		if name, ok := letters[code]; ok {
			pairs = append(pairs, codeName{code, name})
		}
	}
	fkeys := []uint32{122, 120, 99, 118, 96, 97, 98, 100, 101, 109, 103, 111, 105, 107, 113, 106, 64, 79, 80, 90}
	for i, code := range fkeys {
		pairs = append(pairs, codeName{code, fkey(uint32(i + 1))})
	}
	// Keypad after the main keyboard so injection prefers the main keys.
	pairs = append(pairs,
		codeName{65, "."},
		codeName{67, "*"},
		codeName{69, "+"},
		codeName{75, "/"},
		codeName{76, "enter"},
		codeName{78, "-"},
		codeName{91, "8"},
		codeName{92, "9"},
	)
	for i := uint32(0); i <= 7; i++ {
		pairs = append(pairs, codeName{82 + i, Name(rune('0' + i))})
	}
	return pairs
}()

var macOS = sync.OnceValue(func() *Table {
	return newTable("macos", macOSPairs)
})

// MacOS returns the table for macOS virtual key codes.
func MacOS() *Table { return macOS() }
