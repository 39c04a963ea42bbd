// Package units defines the interval and rate units understood by the HTTP
// API and the reporting tools. Intervals are stored and transported as
// microseconds; conversions here exist for display only.
package units

import "strings"

// Supported interval units for API responses
const (
	Micros  = "us"
	Millis  = "ms"
	Seconds = "s"
)

// ValidUnits contains all supported interval unit identifiers
var ValidUnits = []string{Micros, Millis, Seconds}

// IsValid checks if the given unit is supported
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertInterval converts an interval in microseconds to the target unit.
// Unknown units fall back to microseconds.
func ConvertInterval(intervalMicros float64, targetUnits string) float64 {
	switch targetUnits {
	case Millis:
		return intervalMicros / 1e3
	case Seconds:
		return intervalMicros / 1e6
	default:
		return intervalMicros
	}
}

// ConvertToMicros converts an interval in the given unit back to microseconds.
// Unknown units are assumed to already be microseconds.
func ConvertToMicros(interval float64, fromUnits string) float64 {
	switch fromUnits {
	case Millis:
		return interval * 1e3
	case Seconds:
		return interval * 1e6
	default:
		return interval
	}
}
