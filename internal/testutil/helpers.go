package testutil

import (
	"testing"
	"time"
)

// WaitFor polls cond every few milliseconds until it returns true or timeout
// elapses, failing the test in the latter case.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}
