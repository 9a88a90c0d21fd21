// Package racetech encodes live samples as RaceTechnology DL1 records and
// broadcasts them to connected DL1 clients.
package racetech

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/racelogger/internal/protocol"
)

// Message ids.
const (
	XYAccelMessageID       byte = 8
	TimestampMessageID     byte = 9
	GPSPositionMessageID   byte = 10
	GPSSpeedMessageID      byte = 11
	RPMMessageID           byte = 18
	TPSMessageID           byte = 20 // analog 1
	BrakePressureMessageID byte = 20 // analog 2
)

// Record sizes in bytes, header included, checksum excluded.
const (
	XYAccelMessageSize     = 1 + 2 + 2
	TimestampMessageSize   = 1 + 3
	GPSPositionMessageSize = 1 + 4 + 4 + 4
	GPSSpeedMessageSize    = 1 + 4 + 4
	RPMMessageSize         = 1 + 3
	AnalogMessageSize      = 1 + 2
)

const (
	// PeriodConstant is divided by the engine frequency in Hz to give the
	// DL1 RPM period field.
	PeriodConstant = 6e6

	// AnalogMaxVoltage is the full-scale voltage of DL1 analog inputs.
	AnalogMaxVoltage = 5.0

	max24 = 0xFFFFFF
)

// ErrUndefinedRPM is returned for engine speeds with no period encoding.
var ErrUndefinedRPM = errors.New("rpm has no DL1 period encoding")

// Checksum returns the sum of msg's bytes modulo 256.
func Checksum(msg []byte) byte {
	var cs byte
	for _, b := range msg {
		cs += b
	}
	return cs
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// TimestampMessage encodes elapsed milliseconds in 24 bits. Values past
// 2^24 ms wrap, as the logger device does.
func TimestampMessage(elapsedMillis uint32) []byte {
	b := make([]byte, TimestampMessageSize)
	b[0] = TimestampMessageID
	put24(b[1:], elapsedMillis&max24)
	return b
}

// GPSPositionMessage encodes latitude and longitude in degrees scaled by 1e7
// as signed 32-bit integers, followed by a zero 4-byte accuracy field.
func GPSPositionMessage(lat, lon float64) []byte {
	b := make([]byte, GPSPositionMessageSize)
	b[0] = GPSPositionMessageID
	binary.BigEndian.PutUint32(b[1:5], uint32(scaleInt32(lat, protocol.PositionScale)))
	binary.BigEndian.PutUint32(b[5:9], uint32(scaleInt32(lon, protocol.PositionScale)))
	return b
}

// GPSSpeedMessage encodes speed in m/s scaled by 100, followed by a zero
// 4-byte accuracy field.
func GPSSpeedMessage(speed float64) []byte {
	b := make([]byte, GPSSpeedMessageSize)
	b[0] = GPSSpeedMessageID
	v := math.Round(speed * protocol.SpeedScale)
	switch {
	case v < 0:
		v = 0
	case v > math.MaxUint32:
		v = math.MaxUint32
	}
	binary.BigEndian.PutUint32(b[1:5], uint32(v))
	return b
}

// accelBytes encodes one axis in sign-magnitude form: bit 7 of the first
// byte is set for positive values, bits 0-6 hold the integer part of |g|
// (saturating at 127) and the second byte holds the fractional part in
// 1/256 g, truncated.
func accelBytes(g float64) (byte, byte) {
	var sign byte
	if g > 0 {
		sign = 0x80
	}
	mag := math.Abs(g)
	whole := math.Floor(mag)
	if whole > 0x7F {
		return sign | 0x7F, 0xFF
	}
	frac := byte(int((mag-whole)*0x100) & 0xFF)
	return sign | byte(whole), frac
}

// XYAccelMessage encodes lateral and longitudinal acceleration in g.
func XYAccelMessage(x, y float64) []byte {
	b := make([]byte, XYAccelMessageSize)
	b[0] = XYAccelMessageID
	b[1], b[2] = accelBytes(x)
	b[3], b[4] = accelBytes(y)
	return b
}

// RPMMessage encodes engine speed as the DL1 period: PeriodConstant divided
// by the rotation frequency in Hz, rounded, saturating at 24 bits.
func RPMMessage(rpm float64) ([]byte, error) {
	if !(rpm > 0) || math.IsInf(rpm, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUndefinedRPM, rpm)
	}
	period := math.Round(PeriodConstant / (rpm / 60.0))
	if period > max24 {
		period = max24
	}
	b := make([]byte, RPMMessageSize)
	b[0] = RPMMessageID
	put24(b[1:], uint32(period))
	return b, nil
}

// AnalogMessage encodes a voltage in millivolts on the given analog channel.
// Voltages are clamped to what 16 bits of millivolts can carry.
func AnalogMessage(id byte, voltage float64) []byte {
	mv := math.Round(voltage * 1000.0)
	switch {
	case mv < 0 || math.IsNaN(mv):
		mv = 0
	case mv > math.MaxUint16:
		mv = math.MaxUint16
	}
	b := make([]byte, AnalogMessageSize)
	b[0] = id
	binary.BigEndian.PutUint16(b[1:], uint16(mv))
	return b
}

// TPSVoltage maps throttle position in percent to the analog input voltage.
func TPSVoltage(percent float64) float64 {
	return percent / 100.0 * AnalogMaxVoltage
}

// BrakeVoltage maps brake pressure to the analog input voltage relative to
// the configured full-scale pressure.
func BrakeVoltage(pressure, maxPressure float64) float64 {
	return pressure / maxPressure * AnalogMaxVoltage
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
