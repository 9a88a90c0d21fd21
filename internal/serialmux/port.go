package serialmux

import "io"

// SerialPorter is the part of a serial port the mux needs, so tests and
// replays can stand in for hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
