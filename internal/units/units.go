// Package units converts speeds between the logger's storage unit (m/s) and
// the units receivers report or drivers read.
package units

import "fmt"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
	KN   = "kn"
)

// MPSPerKnot is one knot in metres per second.
const MPSPerKnot = 1852.0 / 3600.0

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, KN}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Validate returns an error naming the accepted units when unit is unknown.
func Validate(unit string) error {
	if !IsValid(unit) {
		return fmt.Errorf("invalid speed unit %q: expected one of %v", unit, ValidUnits)
	}
	return nil
}

// KnotsToMPS converts an NMEA speed over ground to m/s.
func KnotsToMPS(knots float64) float64 {
	return knots * MPSPerKnot
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units return m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	case KN:
		return speedMPS / MPSPerKnot
	default:
		return speedMPS
	}
}
