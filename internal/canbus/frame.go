// Package canbus turns raw CAN data frames into calibrated channel values.
//
// A frame payload is read as one 64-bit big-endian field in which bit 0 is the
// most significant bit of byte 0. An Extractor selects a window of that field
// and applies a linear (or custom) calibration.
package canbus

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Identifier masks, same values as <linux/can.h>.
const (
	SFFMask = 0x7FF
	EFFMask = 0x1FFFFFFF

	// MaxPayload is the number of payload bytes significant to extraction.
	MaxPayload = 8
)

// ErrInvalidHex is returned when a frame is built from a missing, odd-length
// or non-hex string.
var ErrInvalidHex = errors.New("invalid CAN hex string")

// Frame is a classical CAN data frame.
type Frame struct {
	ArbitrationID uint64
	Payload       []byte
}

// ParseFrame builds a frame from hex strings such as "0080" and
// "93E87D00007FF3F7". Both strings must be non-empty and of even length; the
// arbitration id may be at most 8 bytes wide.
func ParseFrame(arbitrationID, payload string) (Frame, error) {
	idBytes, err := decodeHex("arbitration id", arbitrationID)
	if err != nil {
		return Frame{}, err
	}
	if len(idBytes) > 8 {
		return Frame{}, fmt.Errorf("%w: arbitration id %q wider than 64 bits", ErrInvalidHex, arbitrationID)
	}
	data, err := decodeHex("payload", payload)
	if err != nil {
		return Frame{}, err
	}

	var id uint64
	for _, b := range idBytes {
		id = id<<8 | uint64(b)
	}
	return Frame{ArbitrationID: id, Payload: data}, nil
}

// MustParseFrame is ParseFrame for fixtures and tests. It panics on error.
func MustParseFrame(arbitrationID, payload string) Frame {
	f, err := ParseFrame(arbitrationID, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// FrameFromBytes builds a frame from a numeric identifier and raw payload as
// delivered by a bus reader. The payload is copied.
func FrameFromBytes(id uint32, data []byte) Frame {
	payload := make([]byte, len(data))
	copy(payload, data)
	return Frame{ArbitrationID: uint64(id), Payload: payload}
}

// Field returns the payload as a 64-bit big-endian integer. Short payloads
// are padded with trailing zero bytes; bytes past the eighth are ignored.
func (f Frame) Field() uint64 {
	var buf [MaxPayload]byte
	copy(buf[:], f.Payload)
	return binary.BigEndian.Uint64(buf[:])
}

func (f Frame) String() string {
	return fmt.Sprintf("%03X#%X", f.ArbitrationID, f.Payload)
}

func decodeHex(what, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidHex, what)
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length %s %q", ErrInvalidHex, what, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidHex, what, s, err)
	}
	return b, nil
}
