// Package racecapture encodes live samples in the RaceCapture telemetry
// record format.
package racecapture

import (
	"encoding/binary"
	"math"

	"github.com/banshee-data/racelogger/internal/protocol"
)

// Message ids.
const (
	TimestampMessageID   byte = 0x09
	GPSPositionMessageID byte = 0x10
	GPSSpeedMessageID    byte = 0x11
)

// Record sizes in bytes, header included.
const (
	TimestampMessageSize   = 1 + 4
	GPSPositionMessageSize = 1 + 4 + 4 + 1 + 1
	GPSSpeedMessageSize    = 1 + 4 + 1 + 1
)

// TimestampMessage encodes elapsed milliseconds since the feed origin.
func TimestampMessage(elapsedMillis uint32) []byte {
	b := make([]byte, TimestampMessageSize)
	b[0] = TimestampMessageID
	binary.BigEndian.PutUint32(b[1:], elapsedMillis)
	return b
}

// GPSPositionMessage encodes latitude and longitude in degrees scaled by 1e7,
// followed by an accuracy byte and a filler byte, both zero. Negative
// coordinates are carried in two's complement.
func GPSPositionMessage(lat, lon float64) []byte {
	b := make([]byte, GPSPositionMessageSize)
	b[0] = GPSPositionMessageID
	binary.BigEndian.PutUint32(b[1:5], uint32(scaleInt32(lat, protocol.PositionScale)))
	binary.BigEndian.PutUint32(b[5:9], uint32(scaleInt32(lon, protocol.PositionScale)))
	return b
}

// GPSSpeedMessage encodes speed in m/s scaled by 100, followed by an accuracy
// byte and a filler byte, both zero.
func GPSSpeedMessage(speed float64) []byte {
	b := make([]byte, GPSSpeedMessageSize)
	b[0] = GPSSpeedMessageID
	binary.BigEndian.PutUint32(b[1:5], scaleUint32(speed, protocol.SpeedScale))
	return b
}

func scaleInt32(v, scale float64) int32 {
	x := math.Round(v * scale)
	switch {
	case x > math.MaxInt32:
		return math.MaxInt32
	case x < math.MinInt32:
		return math.MinInt32
	}
	return int32(x)
}

func scaleUint32(v, scale float64) uint32 {
	x := math.Round(v * scale)
	switch {
	case x < 0:
		return uint32(scaleInt32(v, scale))
	case x > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(x)
}
