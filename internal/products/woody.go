package products

import (
	"context"

	"github.com/livingwales/vproducts/internal/cube"
)

// NFIBand carries the National Forest Inventory woodland type.
const NFIBand = "type"

func init() {
	simple("s1_woody", anyOverTime)
	simple("woody_s1_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 2)
		if err != nil {
			return nil, err
		}
		return combine(func(v []float32) float32 { return bin(v[0] * v[1]) }, in[0], fill(in[1]))
	})
	simple("woody_nfi", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		nfi, err := squeeze(data, NFIBand)
		if err != nil {
			return nil, err
		}
		// types 1 to 4 are woodland
		return nfi.Map(func(v float32) float32 { return flag(v > 0 && v <= 4) }), nil
	})
	register("clear_cuts_s2", func(o Options) (Transformation, error) {
		th := float32(o.config().GetClearCutNDVI())
		return &rule{name: "clear_cuts_s2", band: "clear_cuts_s2", compute: func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
			ndvi, err := growingSeason(data, "NDVI")
			if err != nil {
				return nil, err
			}
			mean, err := ndvi.Mean(ctx)
			if err != nil {
				return nil, err
			}
			return mean.Map(func(v float32) float32 { return flag(v <= th) }), nil
		}}, nil
	})
	simple("woody_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 3)
		if err != nil {
			return nil, err
		}
		return combine(func(v []float32) float32 {
			if v[2] == 1 {
				return cube.NaN
			}
			return bin(v[0] + v[1])
		}, fill(in[0]), fill(in[1]), in[2])
	})
}
