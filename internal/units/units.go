// Package units provides shared constants and conversions for area units
package units

import "strings"

// Unit constants
const (
	M2   = "m2"
	HA   = "ha"
	KM2  = "km2"
	ACRE = "acre"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{M2, HA, KM2, ACRE}

// SquareMetresPerHectare converts pixel areas to the hectares used in reports
const SquareMetresPerHectare = 10000

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

// ConvertArea converts an area in square metres to the target units
// Layers and reports count pixels, so areas start in m²
func ConvertArea(areaM2 float64, targetUnits string) float64 {
	switch targetUnits {
	case HA:
		return areaM2 / SquareMetresPerHectare
	case KM2:
		return areaM2 / 1e6
	case ACRE:
		return areaM2 / 4046.8564224
	default:
		return areaM2 // default to m² if unknown unit
	}
}

// PixelArea returns the area in m² of one square pixel of the given size
func PixelArea(pixelSizeM float64) float64 {
	return pixelSizeM * pixelSizeM
}

// PixelsToHectares converts a pixel count to hectares
func PixelsToHectares(count int, pixelSizeM float64) float64 {
	return float64(count) * PixelArea(pixelSizeM) / SquareMetresPerHectare
}
