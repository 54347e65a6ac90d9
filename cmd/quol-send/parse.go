package main

import (
	"fmt"
	"strings"

	"quol-input/internal/ipc"
	"quol-input/internal/keys"
)

func parseCommand(args []string) (ipc.Request, error) {
	name := strings.TrimSpace(args[0])
	cmd, ok := commandSpecs[name]
	if !ok {
		return ipc.Request{}, fmt.Errorf("unknown command: %s", name)
	}

	rest := args[1:]
	if len(rest) < cmd.minArgs || (cmd.maxArgs >= 0 && len(rest) > cmd.maxArgs) {
		return ipc.Request{}, fmt.Errorf("usage: quol-send %s", strings.TrimSpace(name+" "+cmd.args))
	}
	if cmd.combos {
		for _, arg := range rest {
			if _, err := keys.ParseCombo(arg); err != nil {
				return ipc.Request{}, fmt.Errorf("invalid combo %q: %w", arg, err)
			}
		}
	}
	return ipc.Request{Command: name, Args: rest}, nil
}
