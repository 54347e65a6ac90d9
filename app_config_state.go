package main

import "quol-input/internal/config"

// currentConfig returns a copy of the live config. Callers may mutate it.
func (a *App) currentConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

// swapConfig installs cfg as the live config and returns the one it replaced.
func (a *App) swapConfig(cfg config.Config) config.Config {
	next := config.Clone(cfg)
	a.cfgMu.Lock()
	prev := a.cfg
	a.cfg = next
	a.cfgMu.Unlock()
	return prev
}
