package main

import "quol-input/internal/ipc"

// commandSpec describes the positional arguments a control command takes.
// maxArgs < 0 means unbounded.
type commandSpec struct {
	name    string
	minArgs int
	maxArgs int
	args    string
	help    string
	combos  bool // every argument is a key combo
}

var commandSpecs = map[string]commandSpec{
	ipc.CommandStatus: {
		name: ipc.CommandStatus,
		help: "print engine state",
	},
	ipc.CommandSendKeys: {
		name:    ipc.CommandSendKeys,
		minArgs: 1,
		maxArgs: -1,
		args:    "<combo>...",
		help:    "type each combo in order",
		combos:  true,
	},
	ipc.CommandReload: {
		name: ipc.CommandReload,
		help: "re-read config.yaml",
	},
	ipc.CommandSetToggleKey: {
		name:    ipc.CommandSetToggleKey,
		minArgs: 1,
		maxArgs: 1,
		args:    "<combo>",
		help:    "change and save the toggle key",
		combos:  true,
	},
	ipc.CommandCaptureToggleKey: {
		name: ipc.CommandCaptureToggleKey,
		help: "use the next pressed key as the toggle key",
	},
	ipc.CommandActivate: {
		name: ipc.CommandActivate,
		help: "bring the main window to the front",
	},
	ipc.CommandUsage: {
		name:    ipc.CommandUsage,
		maxArgs: 1,
		args:    "[limit]",
		help:    "print the most used hotkeys",
	},
}

var commandOrder = []string{
	ipc.CommandStatus,
	ipc.CommandSendKeys,
	ipc.CommandReload,
	ipc.CommandSetToggleKey,
	ipc.CommandCaptureToggleKey,
	ipc.CommandActivate,
	ipc.CommandUsage,
}
