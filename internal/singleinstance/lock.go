// Package singleinstance keeps one engine per user. The lock is a named
// mutex on Windows and an flock'd file elsewhere; both are released by the
// kernel when the owning process dies.
package singleinstance

import "errors"

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")
