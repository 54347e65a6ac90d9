package keys

import "sync"

// Windows virtual-key codes. Generic modifiers (VK_SHIFT, VK_CONTROL,
// VK_MENU) come before their left/right variants so injection uses the
// generic code, while low-level hooks (which only report sided codes) still
// resolve left keys to the plain modifier name.
var windowsVKPairs = func() []codeName {
	pairs := []codeName{
		{0x08, "backspace"},
		{0x09, "tab"},
		{0x0D, "enter"},
		{0x10, "shift"},
		{0x11, "ctrl"},
		{0x12, "alt"},
		{0x13, "pause"},
		{0x14, "caps_lock"},
		{0x1B, "esc"},
		{0x20, "space"},
		{0x21, "page_up"},
		{0x22, "page_down"},
		{0x23, "end"},
		{0x24, "home"},
		{0x25, "left"},
		{0x26, "up"},
		{0x27, "right"},
		{0x28, "down"},
		{0x2C, "print_screen"},
		{0x2D, "insert"},
		{0x2E, "delete"},
		{0x5B, "win"},
		{0x5C, "win_r"},
		{0x5D, "menu"},
	}
	for c := uint32('0'); c <= '9'; c++ {
		pairs = append(pairs, codeName{c, Name(rune(c))})
	}
	for c := uint32('A'); c <= 'Z'; c++ {
		pairs = append(pairs, codeName{c, Name(rune(c - 'A' + 'a'))})
	}
	for i := uint32(0); i < 24; i++ {
		pairs = append(pairs, codeName{0x70 + i, fkey(i + 1)})
	}
	for i := uint32(0); i <= 9; i++ {
		pairs = append(pairs, codeName{0x60 + i, Name(rune('0' + i))})
	}
	pairs = append(pairs,
		codeName{0xBA, ";"},
		codeName{0xBB, "="},
		codeName{0xBC, ","},
		codeName{0xBD, "-"},
		codeName{0xBE, "."},
		codeName{0xBF, "/"},
		codeName{0x6A, "*"},
		codeName{0x6B, "+"},
		codeName{0x6D, "-"},
		codeName{0x6E, "."},
		codeName{0x6F, "/"},
		codeName{0x90, "num_lock"},
		codeName{0x91, "scroll_lock"},
		codeName{0xC0, "`"},
		codeName{0xDB, "["},
		codeName{0xDC, "\\"},
		codeName{0xDD, "]"},
		codeName{0xDE, "'"},
		codeName{0xA0, "shift"},
		codeName{0xA1, "shift_r"},
		codeName{0xA2, "ctrl"},
		codeName{0xA3, "ctrl_r"},
		codeName{0xA4, "alt"},
		codeName{0xA5, "alt_r"},
	)
	return pairs
}()

var windowsVK = sync.OnceValue(func() *Table {
	return newTable("windows-vk", windowsVKPairs)
})

// WindowsVK returns the table for Win32 virtual-key codes.
func WindowsVK() *Table { return windowsVK() }
