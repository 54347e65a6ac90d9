//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"quol-input/internal/userutil"
)

func runtimeDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return dir
	}
	return os.TempDir()
}

func defaultAddress() string {
	return filepath.Join(runtimeDir(), "quol-input-"+userutil.CurrentUsername()+".sock")
}

func validAddress(value string) bool {
	return filepath.IsAbs(value) && strings.HasSuffix(value, ".sock")
}

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", address, timeout)
}

func isPlatformConnectionError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist)
}

// listen binds a unix socket readable only by the current user. A socket
// file left behind by a crashed daemon is removed; one with a live server
// behind it is an error.
func listen(address string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(address), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if _, err := os.Lstat(address); err == nil {
		if conn, dialErr := net.DialTimeout("unix", address, 500*time.Millisecond); dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("control socket %s is already in use", address)
		}
		slog.Debug("[ipc] removing stale control socket", "path", address)
		if err := os.Remove(address); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", address)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(address, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return ln, nil
}
