//go:build !windows && !linux && !darwin

package platform

import "quol-input/internal/hook"

func newSource() (hook.Source, error) {
	return nil, ErrUnsupported
}
