package main

import (
	"errors"
	"fmt"
	"log/slog"

	"quol-input/internal/config"
	"quol-input/internal/keys"
)

// reloadConfig re-reads the config file and applies the settings that can
// change at runtime. A file that fails to load leaves the running config in
// place.
func (a *App) reloadConfig() error {
	if a.shuttingDown.Load() {
		return errors.New("shutting down")
	}
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", a.configPath, err)
	}
	a.applyConfig(cfg)
	return nil
}

func (a *App) applyConfig(cfg config.Config) {
	prev := a.swapConfig(cfg)
	a.logLevel.Set(cfg.SlogLevel())

	if cfg.ToggleKey != a.toggle.ActiveBinding() {
		a.configureToggleKey(cfg.ToggleKey)
	}
	bound := a.keymaps.Apply(cfg.Keymaps)

	if restartRequired(prev, cfg) {
		slog.Info("[INFO-CONFIG] stop_timeout, event_feed, usage and control changes take effect after restart")
	}
	slog.Info("[INFO-CONFIG] config reloaded", "toggleKey", a.toggle.ActiveBinding(), "keymaps", bound)
}

func restartRequired(prev, next config.Config) bool {
	return prev.StopTimeout != next.StopTimeout ||
		prev.EventFeed != next.EventFeed ||
		prev.Usage != next.Usage ||
		prev.Control != next.Control
}

// setToggleKey switches the toggle key and persists it. The returned binding
// is the normalized combo.
func (a *App) setToggleKey(key string) (string, error) {
	combo, err := keys.ParseCombo(key)
	if err != nil {
		return "", err
	}
	binding := combo.String()

	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	if err := a.toggle.Start(binding, a.toggleWindow); err != nil {
		return "", err
	}
	cfg := a.currentConfig()
	cfg.ToggleKey = binding
	saved, err := config.Save(a.configPath, cfg)
	if err != nil {
		// The new key is live; only persistence failed.
		return binding, fmt.Errorf("save config: %w", err)
	}
	a.swapConfig(saved)
	return binding, nil
}
