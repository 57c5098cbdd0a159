// Package flood maps open floodwater from Sentinel-1 backscatter.
package flood

import (
	"context"
	"fmt"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
	"github.com/livingwales/vproducts/internal/sites"
)

// Query loads VH and VV over a flood site between two YYYY-MM-DD dates.
func Query(site sites.Site, from, to string) (cube.Query, error) {
	return site.Query(from, to, sites.S1Product, "VH", "VV")
}

// Map flags each acquisition's pixels where both polarisations are below
// the flood thresholds. Flooded pixels are 1, the rest nodata.
func Map(ds *cube.Dataset, cfg *config.Config) (*cube.Stack, error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	vh, err := ds.Band("VH")
	if err != nil {
		return nil, err
	}
	vv, err := ds.Band("VV")
	if err != nil {
		return nil, err
	}
	thVV, thVH := float32(cfg.GetFloodVVDB()), float32(cfg.GetFloodVHDB())
	monitoring.Logf("[flood] mapping %d acquisitions (VV < %g, VH < %g)", vh.Len(), thVV, thVH)
	return vh.Zip(vv, func(h, v float32) float32 {
		if v < thVV && h < thVH {
			return 1
		}
		return cube.NaN
	})
}

// Progression compares consecutive flood maps: 2 newly flooded, 1 still
// flooded, -1 receded.
func Progression(floods *cube.Stack) (*cube.Stack, error) {
	return cube.Progression(floods)
}

// Frequency returns, per pixel, the share of acquisitions inside r that were
// flooded. Pixels never flooded are nodata.
func Frequency(ctx context.Context, floods *cube.Stack, r cube.DateRange) (*cube.Layer, error) {
	sub := floods.Range(r)
	if sub.Len() == 0 {
		return nil, fmt.Errorf("no flood maps in %s: %w", r, cube.ErrNoData)
	}
	wet, err := sub.Count(ctx)
	if err != nil {
		return nil, err
	}
	n := float32(sub.Len())
	return wet.Map(func(v float32) float32 {
		if v > 0 {
			return v / n
		}
		return cube.NaN
	}), nil
}
