package main

import (
	"errors"

	"quol-input/internal/hook"
	"quol-input/internal/usage"
)

func (a *App) requireEngine() (*hook.Manager, error) {
	if a.engine == nil {
		return nil, errors.New("input engine is unavailable")
	}
	return a.engine, nil
}

func (a *App) requireUsage() (*usage.Store, error) {
	if a.usage == nil {
		return nil, errors.New("usage statistics are disabled")
	}
	return a.usage, nil
}
