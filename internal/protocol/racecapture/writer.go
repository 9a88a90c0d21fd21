package racecapture

import (
	"fmt"
	"io"
	"math"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/racelogger/internal/serialmux"
)

// Writer sends each record to its sink as soon as it is encoded. Elapsed
// time is measured from the first timestamp the writer sees.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	origin float64
}

// NewWriter creates a feed writer over out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// OpenSerial opens a serial port as the feed sink.
func OpenSerial(path string, opts serialmux.PortOptions) (io.WriteCloser, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open RaceCapture port %s: %w", path, err)
	}
	return port, nil
}

func (w *Writer) send(msg []byte) error {
	n, err := w.out.Write(msg)
	if err != nil {
		return fmt.Errorf("racecapture write: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("racecapture write: short write %d of %d bytes", n, len(msg))
	}
	return nil
}

// SendTimestamp sends the time elapsed since the first timestamp seen. A
// zero timestamp means no data and is dropped.
func (w *Writer) SendTimestamp(t float64) error {
	if t == 0 || math.IsNaN(t) {
		return nil
	}
	w.mu.Lock()
	if w.origin == 0 {
		w.origin = t
	}
	elapsed := (t - w.origin) * 1000.0
	w.mu.Unlock()

	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > math.MaxUint32 {
		elapsed = math.MaxUint32
	}
	return w.send(TimestampMessage(uint32(elapsed)))
}

// SendGPSPosition sends a position fix. A zero latitude or longitude is
// treated as a missing fix and dropped.
func (w *Writer) SendGPSPosition(lat, lon float64) error {
	if lat == 0 || lon == 0 || math.IsNaN(lat) || math.IsNaN(lon) {
		return nil
	}
	return w.send(GPSPositionMessage(lat, lon))
}

// SendGPSSpeed sends ground speed in m/s. Zero speed is dropped.
func (w *Writer) SendGPSSpeed(speed float64) error {
	if speed == 0 || math.IsNaN(speed) {
		return nil
	}
	return w.send(GPSSpeedMessage(speed))
}
