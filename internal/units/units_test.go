package units

import (
	"math"
	"testing"
)

func TestConvertArea(t *testing.T) {
	tests := []struct {
		name     string
		areaM2   float64
		units    string
		expected float64
	}{
		{"10000 m2 to ha", 10000, HA, 1},
		{"2.5 km2 to ha", 2.5e6, HA, 250},
		{"1e6 m2 to km2", 1e6, KM2, 1},
		{"1 acre", 4046.8564224, ACRE, 1},
		{"m2 unchanged", 123, M2, 123},
		{"unknown units default to m2", 123, "unknown", 123},
		{"zero", 0, HA, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertArea(tt.areaM2, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertArea(%f, %s) = %f, want %f", tt.areaM2, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid m2", M2, true},
		{"valid ha", HA, true},
		{"valid km2", KM2, true},
		{"valid acre", ACRE, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "HA", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "m2, ha, km2, acre" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestPixelsToHectares(t *testing.T) {
	// Sentinel-2 pixels are 10 m, so 100 pixels make one hectare
	if got := PixelsToHectares(250, 10); got != 2.5 {
		t.Errorf("PixelsToHectares(250, 10) = %f, want 2.5", got)
	}
	if got := PixelArea(20); got != 400 {
		t.Errorf("PixelArea(20) = %f, want 400", got)
	}
}
