// Package composite builds multi-year seasonal composites of Sentinel-2
// bands and spectral indices, the features of the pixel classifiers.
package composite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livingwales/vproducts/internal/ard"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/indices"
	"github.com/livingwales/vproducts/internal/monitoring"
)

// DefaultProduct is the Sentinel-2 product composites are loaded from.
const DefaultProduct = "sen2_l2a_gcp"

// Spec describes one composite. Exactly one of Index and Band is set.
type Spec struct {
	Product    string
	Year       int
	StartMonth time.Month
	EndMonth   time.Month
	Index      string
	Band       string
	Stat       string
	Extent     cube.Extent
	// Years is how many years, counting back from Year, are stacked.
	Years      int
	Resolution float64
}

// Name labels the composite in logs and feature listings, e.g. NDVI_0204max.
func (s Spec) Name() string {
	what := s.Index
	if what == "" {
		what = s.Band
	}
	return fmt.Sprintf("%s_%02d%02d%s", what, int(s.StartMonth), int(s.EndMonth), s.Stat)
}

func (s Spec) validate() error {
	if (s.Index == "") == (s.Band == "") {
		return fmt.Errorf("composite needs exactly one of index or band")
	}
	if s.StartMonth < time.January || s.EndMonth > time.December || s.EndMonth < s.StartMonth {
		return fmt.Errorf("invalid composite months %d..%d", s.StartMonth, s.EndMonth)
	}
	if !s.Extent.Valid() {
		return fmt.Errorf("invalid composite extent %s", s.Extent)
	}
	return nil
}

// Composite loads the window StartMonth..EndMonth of Year and the Years-1
// years before it, masks cloud and invalid scene classes, clips to Extent,
// computes the normalised index or takes the raw band, and reduces all
// slices of all years with Stat. Years without observations are skipped.
func Composite(ctx context.Context, src cube.Source, s Spec) (*cube.Layer, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	reducer, err := cube.ReducerByName(s.Stat)
	if err != nil {
		return nil, err
	}
	if s.Product == "" {
		s.Product = DefaultProduct
	}
	if s.Years < 1 {
		s.Years = 1
	}

	measurements := []string{s.Band}
	if s.Index != "" {
		measurements, err = indices.Bands(s.Index)
		if err != nil {
			return nil, err
		}
	}
	measurements = append(measurements, ard.SCLBand)

	var parts []*cube.Stack
	for y := s.Year; y > s.Year-s.Years; y-- {
		window := cube.Months(y, s.StartMonth, s.EndMonth)
		monitoring.Logf("[composite] %s %s", s.Name(), window)
		extent := s.Extent
		ds, err := src.Load(ctx, cube.Query{
			Product:      s.Product,
			Measurements: measurements,
			Extent:       &extent,
			Time:         window,
			Resolution:   s.Resolution,
		})
		if errors.Is(err, cube.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s for %s: %w", s.Product, window, err)
		}
		st, err := feature(ds, s)
		if err != nil {
			return nil, err
		}
		if len(parts) > 0 && !parts[0].Grid.Equal(st.Grid) {
			return nil, fmt.Errorf("composite %s for %d: %w", s.Name(), y, cube.ErrGridMismatch)
		}
		parts = append(parts, st)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("composite %s: %w", s.Name(), cube.ErrNoData)
	}
	all, err := cube.Concat(parts...)
	if err != nil {
		return nil, err
	}
	return all.Reduce(ctx, reducer)
}

// feature applies the scene class mask and extracts the composited band.
func feature(ds *cube.Dataset, s Spec) (*cube.Stack, error) {
	scl, err := ds.Band(ard.SCLBand)
	if err != nil {
		return nil, err
	}
	masked, err := ard.ApplyMask(ds.DropBand(ard.SCLBand), ard.ExcludeMask(scl, ard.InvalidSCL))
	if err != nil {
		return nil, err
	}
	if s.Index != "" {
		return indices.Calculate(masked, s.Index, true)
	}
	return masked.Band(s.Band)
}

// Features computes several composites over the same extent and checks that
// they share a grid.
func Features(ctx context.Context, src cube.Source, specs []Spec) ([]*cube.Layer, error) {
	out := make([]*cube.Layer, len(specs))
	for i, s := range specs {
		l, err := Composite(ctx, src, s)
		if err != nil {
			return nil, fmt.Errorf("failed to compute feature %s: %w", s.Name(), err)
		}
		if i > 0 && !out[0].Grid.Equal(l.Grid) {
			return nil, fmt.Errorf("feature %s: %w", s.Name(), cube.ErrGridMismatch)
		}
		out[i] = l
	}
	return out, nil
}
