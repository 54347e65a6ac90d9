package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"quol-input/internal/ipc"
)

const (
	// captureTimeout stays below the control client's read deadline.
	captureTimeout    = 20 * time.Second
	defaultUsageLimit = 10
)

// execute handles one control request. It runs on a control server
// goroutine, never on the hook goroutine.
func (a *App) execute(req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.OK(a.statusText())
	case ipc.CommandSendKeys:
		return a.executeSendKeys(req.Args)
	case ipc.CommandReload:
		if err := a.reloadConfig(); err != nil {
			return ipc.Fail("reload: " + err.Error())
		}
		return ipc.OK("config reloaded\n")
	case ipc.CommandSetToggleKey:
		if len(req.Args) != 1 {
			return ipc.Fail("usage: set-toggle-key <combo>")
		}
		return a.executeSetToggleKey(req.Args[0])
	case ipc.CommandCaptureToggleKey:
		return a.executeCaptureToggleKey()
	case ipc.CommandActivate:
		a.bringWindowToFront()
		return ipc.OK("")
	case ipc.CommandUsage:
		return a.executeUsage(req.Args)
	default:
		return ipc.Fail(fmt.Sprintf("unknown command: %q", req.Command))
	}
}

func (a *App) executeSendKeys(args []string) ipc.Response {
	if len(args) == 0 {
		return ipc.Fail("usage: send-keys <combo>...")
	}
	engine, err := a.requireEngine()
	if err != nil {
		return ipc.Fail(err.Error())
	}
	for _, combo := range args {
		if err := engine.SendKeys(combo); err != nil {
			return ipc.Fail(fmt.Sprintf("send-keys %s: %v", combo, err))
		}
	}
	return ipc.OK("")
}

func (a *App) executeSetToggleKey(key string) ipc.Response {
	if a.toggle == nil {
		return ipc.Fail("input engine is unavailable")
	}
	binding, err := a.setToggleKey(key)
	if err != nil {
		return ipc.Fail("set-toggle-key: " + err.Error())
	}
	return ipc.OK("toggle key: " + binding + "\n")
}

func (a *App) executeCaptureToggleKey() ipc.Response {
	engine, err := a.requireEngine()
	if err != nil {
		return ipc.Fail(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	slog.Debug("[DEBUG-IPC] waiting for toggle key capture")
	key, err := engine.CaptureNextKey(ctx)
	if err != nil {
		return ipc.Fail("capture-toggle-key: " + err.Error())
	}
	return a.executeSetToggleKey(string(key))
}

func (a *App) executeUsage(args []string) ipc.Response {
	store, err := a.requireUsage()
	if err != nil {
		return ipc.Fail(err.Error())
	}
	limit := defaultUsageLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return ipc.Fail("usage: usage [limit]")
		}
		limit = n
	}
	if err := store.Flush(context.Background()); err != nil {
		return ipc.Fail("usage: " + err.Error())
	}
	entries, err := store.Top(context.Background(), limit)
	if err != nil {
		return ipc.Fail("usage: " + err.Error())
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%d\t%s\t%s\n", e.Count, e.Combo, e.LastFired.Format(time.RFC3339))
	}
	return ipc.OK(b.String())
}
