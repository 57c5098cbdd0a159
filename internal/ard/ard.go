// Package ard prepares analysis-ready Sentinel-1 and Sentinel-2 data: nodata
// masking, scene-classification cloud masking and reflectance scaling.
package ard

import (
	"fmt"

	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/indices"
)

// SCLBand is the Sentinel-2 scene classification band name.
const SCLBand = "scl"

// Scene classification classes.
const (
	SCLNoData       = 0
	SCLSaturated    = 1
	SCLDarkArea     = 2
	SCLCloudShadow  = 3
	SCLVegetation   = 4
	SCLNotVegetated = 5
	SCLWater        = 6
	SCLUnclassified = 7
	SCLCloudMedium  = 8
	SCLCloudHigh    = 9
	SCLThinCirrus   = 10
	SCLSnow         = 11
)

// ValidSCL lists the classes kept by S2: clear land, water and snow.
var ValidSCL = []int{SCLVegetation, SCLNotVegetated, SCLWater, SCLUnclassified, SCLSnow}

// InvalidSCL lists the classes removed before seasonal composites.
var InvalidSCL = []int{SCLNoData, SCLSaturated, SCLDarkArea, SCLCloudShadow, SCLCloudMedium, SCLCloudHigh, SCLThinCirrus}

// S1 masks zero backscatter, the Sentinel-1 fill value, in every band.
func S1(ds *cube.Dataset) (*cube.Dataset, error) {
	return ds.Map(func(_ string, s *cube.Stack) *cube.Stack {
		return s.Where(func(v float32) bool { return v != 0 })
	})
}

// S2 keeps pixels whose scene class is in ValidSCL, drops the scl band and
// scales the remaining bands to reflectance.
func S2(ds *cube.Dataset) (*cube.Dataset, error) {
	scl, err := ds.Band(SCLBand)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare Sentinel-2 ARD: %w", err)
	}
	keep := CleanMask(scl, ValidSCL)
	masked, err := ApplyMask(ds.DropBand(SCLBand), keep)
	if err != nil {
		return nil, err
	}
	return masked.Map(func(_ string, s *cube.Stack) *cube.Stack {
		return s.Map(func(v float32) float32 { return v / indices.ReflectanceScale })
	})
}

// CleanMask returns a 0/1 stack that is 1 where scl is one of valid.
func CleanMask(scl *cube.Stack, valid []int) *cube.Stack {
	set := make(map[float32]bool, len(valid))
	for _, c := range valid {
		set[float32(c)] = true
	}
	return scl.Map(func(v float32) float32 {
		if set[v] {
			return 1
		}
		return 0
	})
}

// ExcludeMask returns a 0/1 stack that is 0 where scl is one of invalid and 1
// elsewhere. Pixels without a scene class are kept.
func ExcludeMask(scl *cube.Stack, invalid []int) *cube.Stack {
	set := make(map[float32]bool, len(invalid))
	for _, c := range invalid {
		set[float32(c)] = true
	}
	return scl.Map(func(v float32) float32 {
		if set[v] {
			return 0
		}
		return 1
	})
}

// ApplyMask sets every band to nodata where mask is not 1.
func ApplyMask(ds *cube.Dataset, mask *cube.Stack) (*cube.Dataset, error) {
	if mask.Len() != ds.Len() || !mask.Grid.Equal(ds.Grid) {
		return nil, fmt.Errorf("mask shape does not match dataset: %w", cube.ErrGridMismatch)
	}
	out := cube.NewDataset(ds.Grid, ds.Times)
	for _, b := range ds.Bands() {
		s, _ := ds.Band(b)
		masked, err := s.Zip(mask, func(v, m float32) float32 {
			if m == 1 {
				return v
			}
			return cube.NaN
		})
		if err != nil {
			return nil, err
		}
		if err := out.SetBand(b, masked); err != nil {
			return nil, err
		}
	}
	return out, nil
}
