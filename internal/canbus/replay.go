package canbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/timeutil"
)

// linkTypeSocketCAN is LINKTYPE_CAN_SOCKETCAN: a 4-byte big-endian can_id,
// length, flags, two reserved bytes, then up to 8 data bytes.
const (
	linkTypeSocketCAN layers.LinkType = 227
	socketCANHeader                   = 8
)

// ReplayCapture feeds a SocketCAN pcap capture (as written by tcpdump or
// wireshark on a can interface) through the decoder. Capture timestamps are
// rebased onto the clock and the recorded inter-frame gaps are reproduced
// with clock sleeps, so replayed samples look live to the recorder.
// It returns nil at end of capture.
func ReplayCapture(ctx context.Context, r io.Reader, decoder *Decoder, clock timeutil.Clock, out chan<- sensor.CANSample) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open CAN capture: %w", err)
	}
	if reader.LinkType() != linkTypeSocketCAN {
		return fmt.Errorf("capture link type %d is not SocketCAN", reader.LinkType())
	}

	var (
		first    time.Time
		base     time.Time
		frames   int
		emitted  int
		lastWait time.Duration
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("CAN replay complete: %d frames, %d samples", frames, emitted)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CAN capture: %w", err)
		}

		frame, ok := decodeSocketCAN(data)
		if !ok {
			continue
		}
		frames++

		if first.IsZero() {
			first = ci.Timestamp
			base = clock.Now()
		}
		if wait := ci.Timestamp.Sub(first); wait > lastWait {
			clock.Sleep(wait - lastWait)
			lastWait = wait
		}

		t := timeutil.Seconds(base.Add(ci.Timestamp.Sub(first)))
		for _, s := range decoder.Decode(t, frame) {
			select {
			case out <- s:
				emitted++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func decodeSocketCAN(data []byte) (Frame, bool) {
	if len(data) < socketCANHeader {
		return Frame{}, false
	}
	id := binary.BigEndian.Uint32(data[0:4]) & EFFMask
	n := int(data[4])
	if n > MaxPayload {
		n = MaxPayload
	}
	if socketCANHeader+n > len(data) {
		n = len(data) - socketCANHeader
	}
	return FrameFromBytes(id, data[socketCANHeader:socketCANHeader+n]), true
}
