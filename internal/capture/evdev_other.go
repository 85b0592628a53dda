//go:build !linux

package capture

import (
	"context"
	"errors"
)

// EvdevSource is only available on Linux.
type EvdevSource struct{}

// OpenEvdev always fails outside Linux.
func OpenEvdev(string) (*EvdevSource, error) {
	return nil, errors.New("evdev capture is only supported on linux")
}

// Path returns an empty string.
func (s *EvdevSource) Path() string {
	return ""
}

// Events always fails outside Linux.
func (s *EvdevSource) Events(context.Context) (<-chan RawEvent, error) {
	return nil, errors.New("evdev capture is only supported on linux")
}
