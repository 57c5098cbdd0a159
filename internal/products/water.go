package products

import (
	"context"

	"github.com/livingwales/vproducts/internal/cube"
)

// S1Band is the Sentinel-1 cross-polarised backscatter band, in dB.
const S1Band = "VH"

func init() {
	register("s1_water", func(o Options) (Transformation, error) {
		cfg := o.config()
		th, months := float32(cfg.GetWaterVHDB()), cfg.GetWaterMonths()
		return &rule{name: "s1_water", band: "s1_water", compute: func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
			return monthsBelow(ctx, data, func(v float32) bool { return v < th }, months)
		}}, nil
	})
	simple("water", anyOverTime)
	simple("water_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 2)
		if err != nil {
			return nil, err
		}
		water, artificial := fill(in[0]), fill(in[1])
		return combine(func(v []float32) float32 { return bin(v[0] - v[1]) }, water, artificial)
	})
	simple("aquatic_wat_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 2)
		if err != nil {
			return nil, err
		}
		return combine(func(v []float32) float32 { return bin(v[0] + v[1]) }, fill(in[0]), fill(in[1]))
	})
}

// monthsBelow scales the share of valid backscatter observations meeting
// pred to a 12-month year and flags pixels above months. Zero backscatter
// is fill and is not counted as an observation.
func monthsBelow(ctx context.Context, data *cube.Dataset, pred func(float32) bool, months float64) (*cube.Layer, error) {
	vh, err := data.Band(S1Band)
	if err != nil {
		return nil, err
	}
	n, err := vh.CountWhere(ctx, func(v float32) bool { return v != 0 })
	if err != nil {
		return nil, err
	}
	hits, err := vh.CountWhere(ctx, pred)
	if err != nil {
		return nil, err
	}
	return combine(func(v []float32) float32 {
		if v[0] == 0 {
			return cube.NaN
		}
		return flag(float64(v[1])/float64(v[0])*12 > months)
	}, n, hits)
}

// anyOverTime flags pixels whose sum over all slices is positive.
func anyOverTime(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
	_, s, err := data.Only()
	if err != nil {
		return nil, err
	}
	sum, err := s.Sum(ctx)
	if err != nil {
		return nil, err
	}
	return sum.Binarize(), nil
}
