//go:build !windows

package singleinstance

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "quol-input-test.lock")

	first, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}

	second, err := TryLock(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second TryLock() error = %v, want ErrAlreadyRunning", err)
	}
	if second != nil {
		t.Fatal("second TryLock() returned a lock")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	again, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock() after release error = %v", err)
	}
	defer again.Release()
}

func TestTryLockEmptyName(t *testing.T) {
	if lock, err := TryLock(""); err == nil {
		lock.Release()
		t.Fatal("TryLock(\"\") expected error")
	}
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release() error = %v", err)
	}
}

func TestDefaultName(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/42")
	t.Setenv("USERNAME", "")
	t.Setenv("USER", "tester")
	if got, want := DefaultName(), "/run/user/42/quol-input-tester.lock"; got != want {
		t.Fatalf("DefaultName() = %q, want %q", got, want)
	}
}
