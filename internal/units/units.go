// Package units provides shared constants and conversion for speed units
package units

import "strings"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
	CMPS = "cmps" // the sensor's native resolution
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, CMPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from meters per second to the target units
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	case CMPS:
		return speedMPS * 100
	default:
		return speedMPS
	}
}

// ConvertSpeedCMPS converts a radar speed reading in cm/s to the target units.
// Negative speeds (approaching) keep their sign.
func ConvertSpeedCMPS(speedCMPS int, targetUnits string) float64 {
	if targetUnits == CMPS {
		return float64(speedCMPS)
	}
	return ConvertSpeed(float64(speedCMPS)/100, targetUnits)
}
