package products

import (
	"context"
	"fmt"
	"time"

	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/indices"
	"github.com/livingwales/vproducts/internal/monitoring"
)

func init() {
	register("s2_veg", func(o Options) (Transformation, error) {
		th := float32(o.config().GetVegetationNDVI())
		return &rule{name: "s2_veg", band: "s2_veg", compute: func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
			ndvi, err := growingSeason(data, "NDVI")
			if err != nil {
				return nil, err
			}
			peak, err := ndvi.Max(ctx)
			if err != nil {
				return nil, err
			}
			return peak.Map(func(v float32) float32 { return flag(v > th) }), nil
		}}, nil
	})
	simple("vegetat_veg_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 3)
		if err != nil {
			return nil, err
		}
		return combine(func(v []float32) float32 { return bin(v[0] - v[1] - v[2]) }, in[0], fill(in[1]), fill(in[2]))
	})
	simple("lifeform_veg_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 2)
		if err != nil {
			return nil, err
		}
		return combine(func(v []float32) float32 {
			woody, veg := v[0], v[1]
			switch {
			case woody >= 1:
				return 1
			case veg > 0:
				return 2
			}
			return 0
		}, fill(in[0]), fill(in[1]))
	})
	for _, name := range []string{"vegetat_veg_cat", "artific_urb_cat", "cultman_agr_cat"} {
		register("le_"+name, func(Options) (Transformation, error) { return &relabel{name: "le_" + name, band: name}, nil })
	}
}

// growingSeason computes index over the April to October slices.
func growingSeason(data *cube.Dataset, index string) (*cube.Stack, error) {
	s, err := indices.Calculate(data, index, false)
	if err != nil {
		return nil, err
	}
	return s.Months(time.April, time.October), nil
}

// relabel hands a finished layer to the land cover classification: the
// single band is renamed to the layer name and nodata becomes 0.
type relabel struct {
	name string
	band string
}

func (r *relabel) Name() string { return r.name }

func (r *relabel) Compute(_ context.Context, data *cube.Dataset) (*cube.Dataset, error) {
	monitoring.Logf("[vp] using %s in the land cover classification", r.band)
	from, _, err := data.Only()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	out := data.FillNaN(0)
	if err := out.Rename(from, r.band); err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	return out, nil
}

func (r *relabel) Measurements(map[string]cube.Measurement) map[string]cube.Measurement {
	return map[string]cube.Measurement{r.band: cube.Binary(r.band)}
}
