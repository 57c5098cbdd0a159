package products

import (
	"context"

	"github.com/livingwales/vproducts/internal/cube"
)

func init() {
	simple("aquatic_peats", positiveBand("peats"))
	simple("aquatic_saltmarshes", positiveBand("saltmarshes"))
	simple("aquatic_veg_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 6)
		if err != nil {
			return nil, err
		}
		species, peats := in[0], in[1]
		return combine(func(v []float32) float32 {
			sp, peat, salt := v[0], v[1], v[2]
			veg, woody, cult := fill0(v[3]), fill0(v[4]), fill0(v[5])
			var aquatic float32
			// species classes 2 and 4 grow in water, class 3 is heather
			// which counts only on peat bog
			if sp == 2 || sp == 4 {
				aquatic += sp
			}
			if sp == 3 && peat == 1 {
				aquatic += sp
			}
			aquatic += fill0(salt)
			a := bin(aquatic)*veg - woody - cult
			return bin(a)
		}, species, peats, in[2], in[3], in[4], in[5])
	})
}

// positiveBand flags pixels where the squeezed ancillary band is positive.
func positiveBand(band string) func(context.Context, *cube.Dataset) (*cube.Layer, error) {
	return func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		l, err := squeeze(data, band)
		if err != nil {
			return nil, err
		}
		return l.Binarize(), nil
	}
}

func fill0(v float32) float32 {
	if cube.IsNaN(v) {
		return 0
	}
	return v
}
