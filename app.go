package main

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quol-input/internal/config"
	"quol-input/internal/configwatch"
	"quol-input/internal/feed"
	"quol-input/internal/hook"
	"quol-input/internal/hotkeys"
	"quol-input/internal/ipc"
	"quol-input/internal/keymap"
	"quol-input/internal/platform"
	"quol-input/internal/usage"
)

// appOptions overrides defaults, mostly for tests.
type appOptions struct {
	configPath     string // "" selects config.DefaultPath()
	controlAddress string // "" selects ipc.DefaultAddress()
}

// App is the engine daemon: the hook engine plus the services built on it.
type App struct {
	opts appOptions

	// Configuration state.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	cfgMu      sync.RWMutex
	cfgSaveMu  sync.Mutex
	cfg        config.Config
	configPath string
	logLevel   *slog.LevelVar

	// Engine and the services registered on it. Set during startup on a
	// single goroutine, read-only afterwards.
	engine  *hook.Manager
	caps    platform.Capabilities
	toggle  *hotkeys.Manager
	keymaps *keymap.Binder
	usage   *usage.Store
	control *ipc.Server
	watcher *configwatch.Watcher

	// feedHub is read by the log tee, which can run before startup.
	feedHub atomic.Pointer[feed.Hub]

	startedAt    time.Time
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

// NewApp creates the daemon.
func NewApp(opts appOptions) *App {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelInfo)
	return &App{
		opts:     opts,
		cfg:      config.DefaultConfig(),
		logLevel: logLevel,
	}
}

// publish queues ev on the event feed. It never blocks.
func (a *App) publish(ev feed.Event) {
	if hub := a.feedHub.Load(); hub != nil {
		hub.Publish(ev)
	}
}

// recordUsage counts one activation of combo.
func (a *App) recordUsage(combo string) {
	if a.usage != nil {
		a.usage.Record(combo)
	}
}
