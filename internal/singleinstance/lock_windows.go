//go:build windows

package singleinstance

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"

	"quol-input/internal/userutil"
)

// Lock owns a named mutex. The hook only sees the interactive session it was
// installed from, so the mutex lives in the session-local namespace.
type Lock struct {
	name   string
	handle windows.Handle
}

// TryLock creates and owns the mutex called name. Returns ErrAlreadyRunning
// when the mutex already exists in this session.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	ptr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("encode lock name %q: %w", name, err)
	}
	h, err := windows.CreateMutex(nil, true, ptr)
	if err != nil {
		// CreateMutex hands back a valid handle alongside ERROR_ALREADY_EXISTS.
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("create mutex %q: %w", name, err)
	}
	return &Lock{name: name, handle: h}, nil
}

// Release drops the mutex. Nil-safe and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	h := l.handle
	l.handle = 0
	if err := windows.CloseHandle(h); err != nil {
		return fmt.Errorf("close mutex %q: %w", l.name, err)
	}
	return nil
}

// DefaultName returns the mutex name for the current user.
func DefaultName() string {
	return `Local\quol-input-` + userutil.CurrentUsername()
}
