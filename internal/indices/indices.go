// Package indices computes Sentinel-2 spectral indices over cube datasets.
package indices

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/livingwales/vproducts/internal/cube"
)

// ReflectanceScale converts stored Sentinel-2 digital numbers to reflectance.
const ReflectanceScale = 10000

type formula struct {
	bands []string
	fn    func(b []float32) float32
}

var formulas = map[string]formula{
	"NDVI": {[]string{"nir", "red"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[0] + b[1])
	}},
	"NDBI": {[]string{"swir1", "nir"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[0] + b[1])
	}},
	"NBR": {[]string{"nir", "swir2"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[0] + b[1])
	}},
	"NDWI": {[]string{"green", "nir"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[0] + b[1])
	}},
	"MNDWI": {[]string{"green", "swir1"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[0] + b[1])
	}},
	"WDRVI": {[]string{"nir", "red"}, func(b []float32) float32 {
		return (0.1*b[0] - b[1]) / (0.1*b[0] + b[1])
	}},
	"CIre": {[]string{"nir", "veg5"}, func(b []float32) float32 {
		return b[0]/b[1] - 1
	}},
	"IRECI": {[]string{"veg7", "red", "veg5", "veg6"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[2] / b[3])
	}},
	"VARIg": {[]string{"green", "red", "blue"}, func(b []float32) float32 {
		return (b[0] - b[1]) / (b[0] + b[1] - b[2])
	}},
	"EVI": {[]string{"nir", "red", "blue"}, func(b []float32) float32 {
		return 2.5 * (b[0] - b[1]) / (b[0] + 6*b[1] - 7.5*b[2] + 1)
	}},
	"SAVI": {[]string{"nir", "red"}, func(b []float32) float32 {
		return 1.5 * (b[0] - b[1]) / (b[0] + b[1] + 0.5)
	}},
}

// Names returns the supported index names, sorted.
func Names() []string {
	out := make([]string, 0, len(formulas))
	for k := range formulas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Bands returns the bands an index reads.
func Bands(index string) ([]string, error) {
	f, ok := formulas[index]
	if !ok {
		return nil, unknown(index)
	}
	return append([]string(nil), f.bands...), nil
}

// Calculate evaluates index over every time slice of ds. With normalise the
// input bands are divided by ReflectanceScale first. Division by zero yields
// nodata rather than infinities.
func Calculate(ds *cube.Dataset, index string, normalise bool) (*cube.Stack, error) {
	f, ok := formulas[index]
	if !ok {
		return nil, unknown(index)
	}
	in := make([]*cube.Stack, len(f.bands))
	for i, b := range f.bands {
		s, err := ds.Band(b)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate %s: %w", index, err)
		}
		in[i] = s
	}

	scale := float32(1)
	if normalise {
		scale = ReflectanceScale
	}
	out := cube.NewStack(ds.Grid)
	vals := make([]float32, len(in))
	for t := 0; t < ds.Len(); t++ {
		data := make([]float32, ds.Grid.Len())
		for i := range data {
			for k, s := range in {
				vals[k] = s.Slices[t][i] / scale
			}
			v := f.fn(vals)
			if isInf(v) {
				v = cube.NaN
			}
			data[i] = v
		}
		if err := out.Append(ds.Times[t], data); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Add evaluates index and stores it on ds under the index name.
func Add(ds *cube.Dataset, index string, normalise bool) error {
	s, err := Calculate(ds, index, normalise)
	if err != nil {
		return err
	}
	return ds.SetBand(index, s)
}

func unknown(index string) error {
	return fmt.Errorf("unknown index %q: must be one of %s", index, strings.Join(Names(), ", "))
}

func isInf(v float32) bool {
	return math.IsInf(float64(v), 0)
}
