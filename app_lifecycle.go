package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quol-input/internal/config"
	"quol-input/internal/configwatch"
	"quol-input/internal/feed"
	"quol-input/internal/hook"
	"quol-input/internal/hotkeys"
	"quol-input/internal/ipc"
	"quol-input/internal/keymap"
	"quol-input/internal/keys"
	"quol-input/internal/platform"
	"quol-input/internal/usage"
)

var (
	newSourceFn        = platform.NewSource
	newControlServerFn = ipc.NewServer
)

const shutdownWaitTimeout = 10 * time.Second

// startup brings the engine up. Only a missing input source or a failed hook
// installation is fatal; every other service degrades to a warning.
func (a *App) startup(ctx context.Context) error {
	a.startedAt = time.Now()

	a.configPath = a.opts.configPath
	if a.configPath == "" {
		a.configPath = config.DefaultPath()
	}
	for _, message := range config.ConsumeDefaultPathWarnings() {
		slog.Warn("[WARN-CONFIG] " + message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// Config load/parse failures are non-fatal: run with defaults.
		slog.Warn("[WARN-CONFIG] failed to load config, running with defaults", "path", a.configPath, "error", err)
		cfg = config.DefaultConfig()
	}
	a.swapConfig(cfg)
	a.logLevel.Set(cfg.SlogLevel())

	src, err := newSourceFn()
	if err != nil {
		return fmt.Errorf("create input source: %w", err)
	}
	a.caps = platform.Describe(src)
	if !a.caps.Suppress {
		slog.Warn("[WARN-HOOK] input source cannot suppress events; hotkeys will not swallow keys")
	}
	if !a.caps.Inject {
		slog.Warn("[WARN-HOOK] input source cannot inject keys; keymaps and send-keys are unavailable")
	}

	a.engine = hook.NewManager(src, hook.WithStopTimeout(cfg.StopTimeout))
	if err := a.engine.Start(); err != nil {
		return fmt.Errorf("start input hook: %w", err)
	}

	a.startFeed(ctx, cfg)
	a.startUsage(cfg)

	a.toggle = hotkeys.NewManager(a.engine)
	a.configureToggleKey(cfg.ToggleKey)
	a.keymaps = keymap.NewBinder(a.engine, a.onRemap)
	a.keymaps.Apply(cfg.Keymaps)

	a.startControl(cfg)
	a.startConfigWatch(ctx)

	slog.Info("[INFO-APP] engine running",
		"platform", a.engine.Keys().Platform(),
		"toggleKey", a.toggle.ActiveBinding(),
		"keymaps", len(a.keymaps.Bindings()),
	)
	return nil
}

func (a *App) startFeed(ctx context.Context, cfg config.Config) {
	if !cfg.EventFeed.Enabled {
		return
	}
	hub := feed.NewHub(feed.HubOptions{Addr: cfg.EventFeed.Addr})
	if err := hub.Start(ctx); err != nil {
		slog.Warn("[WARN-FEED] event feed failed to start", "addr", cfg.EventFeed.Addr, "error", err)
		return
	}
	a.feedHub.Store(hub)
	a.registerFeedListeners()
	slog.Info("[INFO-FEED] event feed listening", "url", hub.URL())
}

// registerFeedListeners mirrors raw input onto the feed. The hub drops
// events nobody subscribed to before queueing them.
func (a *App) registerFeedListeners() {
	a.engine.AddKeyPressListener(func(key keys.Name) {
		a.publish(feed.KeyDown(string(key)))
	})
	a.engine.AddKeyReleaseListener(func(key keys.Name) {
		a.publish(feed.KeyUp(string(key)))
	})
	a.engine.AddMouseMoveListener(func(x, y int) {
		a.publish(feed.MouseMove(x, y))
	})
	a.engine.AddMouseClickListener(func(x, y int, button string, pressed bool) {
		a.publish(feed.MouseClick(x, y, button, pressed))
	})
}

func (a *App) startUsage(cfg config.Config) {
	if !cfg.Usage.Enabled {
		return
	}
	path := cfg.UsagePath(a.configPath)
	store, err := usage.Open(path, usage.Options{})
	if err != nil {
		slog.Warn("[WARN-USAGE] usage statistics unavailable", "path", path, "error", err)
		return
	}
	a.usage = store
}

func (a *App) startControl(cfg config.Config) {
	if !cfg.Control.Enabled {
		return
	}
	server := newControlServerFn(a.opts.controlAddress, ipc.ExecutorFunc(a.execute))
	if err := server.Start(); err != nil {
		slog.Warn("[ipc] control server failed to start", "error", err)
		return
	}
	a.control = server
}

func (a *App) startConfigWatch(ctx context.Context) {
	watcher, err := configwatch.New(a.configPath, 0, func() {
		if err := a.reloadConfig(); err != nil {
			slog.Warn("[WARN-CONFIG] config reload failed", "error", err)
		}
	})
	if err == nil {
		err = watcher.Start(ctx)
	}
	if err != nil {
		slog.Warn("[WARN-CONFIG] config hot reload disabled", "error", err)
		return
	}
	a.watcher = watcher
}

// shutdown stops services in reverse start order. Safe to call after a
// partial startup and more than once.
func (a *App) shutdown() {
	a.shutdownOnce.Do(func() {
		a.shuttingDown.Store(true)

		if a.watcher != nil {
			if err := a.watcher.Close(); err != nil {
				slog.Warn("[WARN-CONFIG] config watcher close failed", "error", err)
			}
		}
		if a.control != nil {
			if err := a.control.Stop(); err != nil {
				slog.Warn("[ipc] control server stop failed", "error", err)
			}
		}
		if a.keymaps != nil {
			a.keymaps.Clear()
		}
		if a.toggle != nil {
			if err := a.toggle.Stop(); err != nil {
				slog.Warn("[WARN-HOOK] toggle key stop failed", "error", err)
			}
		}
		if a.engine != nil {
			if err := a.engine.Stop(); err != nil {
				if errors.Is(err, hook.ErrStopTimeout) {
					slog.Warn("[WARN-HOOK] hook thread did not exit in time", "error", err)
				} else {
					slog.Warn("[WARN-HOOK] engine stop failed", "error", err)
				}
			}
		}
		if hub := a.feedHub.Swap(nil); hub != nil {
			if err := hub.Stop(); err != nil {
				slog.Warn("[WARN-FEED] event feed stop failed", "error", err)
			}
		}
		if a.usage != nil {
			if err := a.usage.Close(); err != nil {
				slog.Warn("[WARN-USAGE] usage store close failed", "error", err)
			}
		}
	})
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely, but this function is only
	// used during process shutdown where eventual completion is expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// configureToggleKey registers key as the toggle key. On failure the
// previous binding, if any, stays active.
func (a *App) configureToggleKey(key string) {
	if err := a.toggle.Start(key, a.toggleWindow); err != nil {
		slog.Warn("[WARN-HOOK] toggle key registration failed", "key", key, "error", err)
	}
}

// toggleWindow runs on the hook goroutine when the toggle key fires.
func (a *App) toggleWindow() {
	combo := a.toggle.ActiveBinding()
	a.publish(feed.Toggle(combo))
	a.recordUsage(combo)
}

// bringWindowToFront is used when a second instance signals the first to
// activate.
func (a *App) bringWindowToFront() {
	a.publish(feed.Activate())
}

// onRemap runs on the hook goroutine after a keymap entry sent its keys.
func (a *App) onRemap(b keymap.Binding) {
	a.publish(feed.Hotkey(b.From))
	a.recordUsage(b.From)
}
