//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealLineGroup is not available on non-Linux platforms.
type RealLineGroup struct{}

// NewRealLineGroup returns an error on non-Linux platforms.
func NewRealLineGroup(cfg Config) (*RealLineGroup, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Dropped is always zero on non-Linux platforms.
func (g *RealLineGroup) Dropped() uint64 { return 0 }

// ReadValues is not implemented on non-Linux platforms.
func (g *RealLineGroup) ReadValues(values []LineValue) error {
	return errors.New("gpio: not supported")
}

// WriteValues is not implemented on non-Linux platforms.
func (g *RealLineGroup) WriteValues(values []LineValue) error {
	return errors.New("gpio: not supported")
}

// Poll is not implemented on non-Linux platforms.
func (g *RealLineGroup) Poll(timeout time.Duration) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// ReadEvent is not implemented on non-Linux platforms.
func (g *RealLineGroup) ReadEvent() (Event, bool, error) {
	return Event{}, false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *RealLineGroup) Close() error {
	return nil
}
