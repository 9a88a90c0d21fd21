//go:build !linux

package rfcomm

import "io"

// Listener is unavailable on this platform.
type Listener struct{}

// Listen always fails with ErrUnsupported.
func Listen(channel uint8) (*Listener, error) {
	return nil, ErrUnsupported
}

func (l *Listener) Accept() (io.ReadWriteCloser, error) { return nil, ErrUnsupported }
func (l *Listener) Close() error                        { return nil }
