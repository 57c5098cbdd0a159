// Package training extracts per-zone statistics of feature layers, the
// samples used to fit the pixel classifiers.
package training

import (
	"errors"
	"fmt"
	"sort"

	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/stats"
)

// ErrInvalidMethod is returned for an unsupported statistic.
var ErrInvalidMethod = errors.New("invalid method")

// DefaultMethod is used when no method is given.
const DefaultMethod = "median"

var methods = map[string]func([]float64) float64{
	"min":    stats.Min,
	"max":    stats.Max,
	"median": stats.Median,
	"mean":   stats.Mean,
	"sum":    stats.Sum,
	"std":    stats.Std,
}

// Methods lists the supported statistics.
func Methods() []string {
	out := make([]string, 0, len(methods))
	for m := range methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Samples holds one row per training zone and one column per layer.
type Samples struct {
	Zones []int
	Rows  [][]float64
}

// CollectTrainingData computes the statistic of every layer over each zone
// of a rasterised zone layer. Zone ids are positive integers; 0 and nodata
// are background. Zones without valid values give NaN, or 0 for sum.
func CollectTrainingData(layers []*cube.Layer, zones *cube.Layer, method string) (*Samples, error) {
	if zones == nil {
		return nil, fmt.Errorf("a zone layer is required")
	}
	if method == "" {
		method = DefaultMethod
	}
	fn, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("%q is not one of %v: %w", method, Methods(), ErrInvalidMethod)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("at least one layer is required")
	}
	for i, l := range layers {
		if !l.Grid.Equal(zones.Grid) {
			return nil, fmt.Errorf("layer %d: %w", i, cube.ErrGridMismatch)
		}
	}

	pixels := make(map[int][]int)
	for i, z := range zones.Data {
		if cube.IsNaN(z) || z <= 0 {
			continue
		}
		pixels[int(z)] = append(pixels[int(z)], i)
	}
	out := &Samples{}
	for z := range pixels {
		out.Zones = append(out.Zones, z)
	}
	sort.Ints(out.Zones)

	for _, z := range out.Zones {
		idx := pixels[z]
		row := make([]float64, len(layers))
		vals := make([]float64, len(idx))
		for j, l := range layers {
			for k, i := range idx {
				vals[k] = float64(l.Data[i])
			}
			row[j] = fn(vals)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
