package racetech

import (
	"errors"
	"math"
)

// DefaultMaxBrakePressure is the full-scale brake pressure. Its unit depends
// on the fitted sensor, so deployments override it.
const DefaultMaxBrakePressure = 1e-6

// Broadcaster delivers a flushed bulk buffer to the connected clients.
type Broadcaster interface {
	Broadcast(p []byte) int
}

// Writer queues DL1 records and sends them in bulk on Flush. It is used from
// the polling goroutine only.
type Writer struct {
	out              Broadcaster
	maxBrakePressure float64
	origin           float64
	pending          [][]byte
}

// NewWriter creates a DL1 feed writer. A non-positive maxBrakePressure
// selects DefaultMaxBrakePressure.
func NewWriter(out Broadcaster, maxBrakePressure float64) *Writer {
	if !(maxBrakePressure > 0) {
		maxBrakePressure = DefaultMaxBrakePressure
	}
	return &Writer{out: out, maxBrakePressure: maxBrakePressure}
}

// Pending returns the number of queued records.
func (w *Writer) Pending() int {
	return len(w.pending)
}

func (w *Writer) queue(msg []byte) {
	w.pending = append(w.pending, msg)
}

// Flush joins each queued record with its checksum into one buffer, clears
// the queue and broadcasts the buffer. An empty queue sends nothing.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	size := 0
	for _, m := range w.pending {
		size += len(m) + 1
	}
	buf := make([]byte, 0, size)
	for _, m := range w.pending {
		buf = append(buf, m...)
		buf = append(buf, Checksum(m))
	}
	w.pending = w.pending[:0]

	w.out.Broadcast(buf)
	return nil
}

// SendTimestamp queues the time elapsed since the first timestamp seen. A
// zero timestamp means no data and is dropped.
func (w *Writer) SendTimestamp(t float64) error {
	if t == 0 || math.IsNaN(t) {
		return nil
	}
	if w.origin == 0 {
		w.origin = t
	}
	elapsed := (t - w.origin) * 1000.0
	if elapsed < 0 {
		elapsed = 0
	}
	w.queue(TimestampMessage(uint32(int64(elapsed))))
	return nil
}

// SendGPSPosition queues a position fix. A zero latitude or longitude is a
// missing fix and is dropped.
func (w *Writer) SendGPSPosition(lat, lon float64) error {
	if lat == 0 || lon == 0 || math.IsNaN(lat) || math.IsNaN(lon) {
		return nil
	}
	w.queue(GPSPositionMessage(lat, lon))
	return nil
}

// SendGPSSpeed queues ground speed in m/s. Zero speed is dropped.
func (w *Writer) SendGPSSpeed(speed float64) error {
	if speed == 0 || math.IsNaN(speed) {
		return nil
	}
	w.queue(GPSSpeedMessage(speed))
	return nil
}

// SendAcceleration queues the X and Y axes. DL1 message 8 has no Z axis.
func (w *Writer) SendAcceleration(x, y, z float64) error {
	w.queue(XYAccelMessage(x, y))
	return nil
}

// SendRPM queues engine speed. Non-positive speeds have no period encoding
// and are dropped.
func (w *Writer) SendRPM(rpm float64) error {
	msg, err := RPMMessage(rpm)
	if errors.Is(err, ErrUndefinedRPM) {
		return nil
	}
	if err != nil {
		return err
	}
	w.queue(msg)
	return nil
}

// SendTPS queues throttle position in percent on analog channel 1.
func (w *Writer) SendTPS(percent float64) error {
	w.queue(AnalogMessage(TPSMessageID, TPSVoltage(percent)))
	return nil
}

// SendBrakePressure queues brake pressure on analog channel 2.
func (w *Writer) SendBrakePressure(pressure float64) error {
	w.queue(AnalogMessage(BrakePressureMessageID, BrakeVoltage(pressure, w.maxBrakePressure)))
	return nil
}
