package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quol-input/internal/ipc"
	"quol-input/internal/singleinstance"
)

func main() {
	os.Exit(run())
}

func run() int {
	app := NewApp(appOptions{})
	slog.SetDefault(newLogger(os.Stderr, app.logLevel, app.publishLogEntry))
	setConsoleUTF8()

	// Single-instance check before any hook is installed: two engines would
	// both suppress the same keys.
	lock, err := singleinstance.TryLock(singleinstance.DefaultName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[DEBUG-SINGLE] another instance is already running, signaling activation")
		if _, sendErr := ipc.Send("", ipc.Request{Command: ipc.CommandActivate}); sendErr != nil {
			slog.Warn("[DEBUG-SINGLE] failed to signal existing instance", "error", sendErr)
		}
		return 0
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] instance lock failed, proceeding without single-instance guard", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] instance lock release failed", "error", releaseErr)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.startup(ctx); err != nil {
		slog.Error("[DEBUG-APP] startup failed", "error", err)
		app.shutdown()
		return 1
	}

	<-ctx.Done()
	slog.Info("[DEBUG-APP] shutdown requested")
	if !waitWithTimeout(app.shutdown, shutdownWaitTimeout) {
		slog.Warn("[DEBUG-APP] timed out waiting for shutdown")
		return 1
	}
	return 0
}
