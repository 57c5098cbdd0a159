// Package products implements the virtual-product transformations that derive
// land cover layers from Sentinel-1, Sentinel-2 and ancillary products.
//
// Combining transformations receive a collated dataset: a single band whose
// time slices are the input products in recipe order, so input i is time
// slice i. Reducing transformations return one zero-timestamped slice.
package products

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
)

// ErrUnknownProduct is returned by New for names without a transformation.
var ErrUnknownProduct = errors.New("unknown product")

// Transformation derives a dataset from its input dataset.
type Transformation interface {
	Name() string
	Compute(ctx context.Context, data *cube.Dataset) (*cube.Dataset, error)
	// Measurements describes the output bands given the input bands.
	Measurements(in map[string]cube.Measurement) map[string]cube.Measurement
}

// Options configure a transformation.
type Options struct {
	Config *config.Config
	// Source serves auxiliary loads: classifier composites and OSM features.
	Source cube.Source
	// Model is the classifier model file, relative to the config model dir.
	Model string
}

func (o Options) config() *config.Config {
	if o.Config == nil {
		return config.Empty()
	}
	return o.Config
}

type factory func(o Options) (Transformation, error)

var registry = map[string]factory{}

func register(name string, f factory) {
	if _, dup := registry[name]; dup {
		panic("products: duplicate registration of " + name)
	}
	registry[name] = f
}

// New returns the named transformation.
func New(name string, o Options) (Transformation, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, name)
	}
	return f(o)
}

// Has reports whether name is a registered transformation.
func Has(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered transformation names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// rule is a transformation producing a single float32 0/1 band.
type rule struct {
	name    string
	band    string
	compute func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error)
}

func (r *rule) Name() string { return r.name }

func (r *rule) Compute(ctx context.Context, data *cube.Dataset) (*cube.Dataset, error) {
	done := monitoring.Stage(r.name)
	defer done()
	l, err := r.compute(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	return cube.FromLayer(r.band, l), nil
}

func (r *rule) Measurements(map[string]cube.Measurement) map[string]cube.Measurement {
	return map[string]cube.Measurement{r.band: cube.Binary(r.band)}
}

// simple registers a rule whose output band is named after the product.
func simple(name string, fn func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error)) {
	register(name, func(Options) (Transformation, error) {
		return &rule{name: name, band: name, compute: fn}, nil
	})
}

// input returns time slice i of the single band of a collated dataset.
func input(data *cube.Dataset, i int) (*cube.Layer, error) {
	_, s, err := data.Only()
	if err != nil {
		return nil, fmt.Errorf("collated input: %w", err)
	}
	if i >= s.Len() {
		return nil, fmt.Errorf("need at least %d collated inputs, got %d", i+1, s.Len())
	}
	return s.Slice(i)
}

// inputs returns the first n collated inputs.
func inputs(data *cube.Dataset, n int) ([]*cube.Layer, error) {
	out := make([]*cube.Layer, n)
	for i := range out {
		l, err := input(data, i)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

// squeeze returns the only time slice of band.
func squeeze(data *cube.Dataset, band string) (*cube.Layer, error) {
	return data.Layer(band)
}

func fill(l *cube.Layer) *cube.Layer { return l.FillNaN(0) }

// combine evaluates fn pixel by pixel over layers sharing a grid.
func combine(fn func(v []float32) float32, layers ...*cube.Layer) (*cube.Layer, error) {
	g := layers[0].Grid
	for _, l := range layers[1:] {
		if !g.Equal(l.Grid) {
			return nil, cube.ErrGridMismatch
		}
	}
	out := &cube.Layer{Grid: g, Data: make([]float32, g.Len())}
	v := make([]float32, len(layers))
	for i := range out.Data {
		for k, l := range layers {
			v[k] = l.Data[i]
		}
		out.Data[i] = fn(v)
	}
	return out, nil
}

// flag returns 1 where cond holds and nodata elsewhere.
func flag(cond bool) float32 {
	if cond {
		return 1
	}
	return cube.NaN
}

// bin is the x.where(x > 0)*0+1 idiom: 1 where v > 0, else nodata.
func bin(v float32) float32 { return flag(v > 0) }
