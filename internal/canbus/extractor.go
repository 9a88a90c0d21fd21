package canbus

import (
	"errors"
	"fmt"
)

// ErrBitRange is returned for extraction windows that do not fit in 64 bits.
var ErrBitRange = errors.New("CAN bit range out of bounds")

// Transform maps a raw extracted integer to a physical value, replacing the
// linear calibration.
type Transform func(raw uint64) float64

// Extractor is an immutable calibration rule: value = raw*scale + offset, or
// transform(raw) when a custom transform is set.
type Extractor struct {
	bitOffset uint
	bitLength uint
	scale     float64
	offset    float64
	transform Transform
}

// ExtractorOption customises an Extractor at construction.
type ExtractorOption func(*Extractor)

// WithScale sets the linear scale factor (default 1.0).
func WithScale(a float64) ExtractorOption {
	return func(e *Extractor) { e.scale = a }
}

// WithOffset sets the linear offset (default 0.0).
func WithOffset(c float64) ExtractorOption {
	return func(e *Extractor) { e.offset = c }
}

// WithTransform replaces the linear calibration with f.
func WithTransform(f Transform) ExtractorOption {
	return func(e *Extractor) { e.transform = f }
}

// NewExtractor builds an extractor for bitLength bits starting at bitOffset,
// counted from the most significant bit of the payload.
func NewExtractor(bitOffset, bitLength int, opts ...ExtractorOption) (Extractor, error) {
	if err := checkRange(bitOffset, bitLength); err != nil {
		return Extractor{}, err
	}
	e := Extractor{
		bitOffset: uint(bitOffset),
		bitLength: uint(bitLength),
		scale:     1.0,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// MustExtractor is NewExtractor for static channel tables. It panics on error.
func MustExtractor(bitOffset, bitLength int, opts ...ExtractorOption) Extractor {
	e, err := NewExtractor(bitOffset, bitLength, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func checkRange(bitOffset, bitLength int) error {
	switch {
	case bitOffset < 0 || bitOffset > 63:
		return fmt.Errorf("%w: offset %d not in 0..63", ErrBitRange, bitOffset)
	case bitLength < 1 || bitLength > 64:
		return fmt.Errorf("%w: length %d not in 1..64", ErrBitRange, bitLength)
	case bitOffset+bitLength > 64:
		return fmt.Errorf("%w: offset %d + length %d exceeds 64", ErrBitRange, bitOffset, bitLength)
	}
	return nil
}

// Extract returns the raw integer in the extractor's bit window.
func (e Extractor) Extract(f Frame) (uint64, error) {
	if err := checkRange(int(e.bitOffset), int(e.bitLength)); err != nil {
		return 0, err
	}
	mask := ^uint64(0)
	if e.bitLength < 64 {
		mask = uint64(1)<<e.bitLength - 1
	}
	return (f.Field() >> (64 - e.bitOffset - e.bitLength)) & mask, nil
}

// Convert extracts the raw window and applies the calibration.
func (e Extractor) Convert(f Frame) (float64, error) {
	raw, err := e.Extract(f)
	if err != nil {
		return 0, err
	}
	if e.transform != nil {
		return e.transform(raw), nil
	}
	return float64(raw)*e.scale + e.offset, nil
}

func (e Extractor) String() string {
	if e.transform != nil {
		return fmt.Sprintf("bits[%d:+%d] custom", e.bitOffset, e.bitLength)
	}
	return fmt.Sprintf("bits[%d:+%d]*%g%+g", e.bitOffset, e.bitLength, e.scale, e.offset)
}
