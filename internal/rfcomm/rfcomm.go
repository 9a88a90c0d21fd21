// Package rfcomm listens for Bluetooth RFCOMM connections, which is how DL1
// clients such as lap timing apps attach to the logger.
package rfcomm

import (
	"errors"
	"fmt"
	"time"
)

// DefaultChannel is the RFCOMM channel DL1 clients connect to.
const DefaultChannel = 1

// ErrUnsupported is returned on platforms without Bluetooth sockets.
var ErrUnsupported = errors.New("rfcomm: not supported on this platform")

const (
	backlog = 1

	// acceptPoll bounds how long Accept waits before re-checking Close.
	acceptPoll = 200 * time.Millisecond
)

// formatAddr renders a bdaddr, stored least-significant byte first, in the
// usual colon-separated form.
func formatAddr(a [6]uint8) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}
