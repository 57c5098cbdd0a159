package products

import (
	"context"
	"fmt"
	"time"

	"github.com/livingwales/vproducts/internal/classify"
	"github.com/livingwales/vproducts/internal/composite"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
)

// feature is one composite fed to a classifier.
type feature struct {
	index, band string
	from, to    time.Month
	stat        string
}

// cultivatedFeatures are the Feb-Apr composites of the cultivated model,
// in model column order.
var cultivatedFeatures = []feature{
	{index: "NDVI", from: time.February, to: time.April, stat: "max"},
	{index: "VARIg", from: time.February, to: time.April, stat: "max"},
	{index: "VARIg", from: time.February, to: time.April, stat: "median"},
	{index: "IRECI", from: time.February, to: time.April, stat: "max"},
	{index: "CIre", from: time.February, to: time.April, stat: "max"},
	{index: "WDRVI", from: time.February, to: time.April, stat: "max"},
}

// species5Features are the composites of the five-class species model.
var species5Features = []feature{
	{index: "IRECI", from: time.February, to: time.October, stat: "max"},
	{index: "IRECI", from: time.February, to: time.April, stat: "max"},
	{band: "veg6", from: time.May, to: time.August, stat: "max"},
	{index: "CIre", from: time.February, to: time.April, stat: "median"},
	{index: "WDRVI", from: time.February, to: time.April, stat: "median"},
	{band: "red", from: time.April, to: time.April, stat: "min"},
	{band: "veg6", from: time.May, to: time.August, stat: "min"},
}

// classifier predicts a class per pixel of the input grid from multi-year
// composites of the Sentinel-2 archive.
type classifier struct {
	name     string
	band     string
	features []feature
	model    *classify.Model
	src      cube.Source
	years    int
}

func newClassifier(name, band string, features []feature) factory {
	return func(o Options) (Transformation, error) {
		if o.Source == nil {
			return nil, fmt.Errorf("%s needs a data source for its composites", name)
		}
		cfg := o.config()
		m, err := classify.Load(o.Model, cfg.GetModelDir())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if m.NFeatures != len(features) {
			return nil, fmt.Errorf("%s: model expects %d features, composites provide %d", name, m.NFeatures, len(features))
		}
		return &classifier{name: name, band: band, features: features, model: m, src: o.Source, years: cfg.GetCompositeYears()}, nil
	}
}

func (c *classifier) Name() string { return c.name }

func (c *classifier) Compute(ctx context.Context, data *cube.Dataset) (*cube.Dataset, error) {
	done := monitoring.Stage(c.name)
	defer done()
	if data.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", c.name, cube.ErrNoData)
	}
	monitoring.Logf("[vp] %s: calculating composites", c.name)
	specs := c.specs(data.Times[0].UTC().Year(), data.Grid)
	feats, err := composite.Features(ctx, c.src, specs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if !feats[0].Grid.Equal(data.Grid) {
		return nil, fmt.Errorf("%s: composites do not cover the input grid: %w", c.name, cube.ErrGridMismatch)
	}
	monitoring.Logf("[vp] %s: predicting", c.name)
	pred, err := c.model.Predict(ctx, feats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return cube.FromLayer(c.band, pred), nil
}

func (c *classifier) specs(year int, g cube.Grid) []composite.Spec {
	out := make([]composite.Spec, len(c.features))
	for i, f := range c.features {
		out[i] = composite.Spec{
			Year:       year,
			StartMonth: f.from,
			EndMonth:   f.to,
			Index:      f.index,
			Band:       f.band,
			Stat:       f.stat,
			Extent:     g.Extent(),
			Years:      c.years,
			Resolution: g.Resolution(),
		}
	}
	return out
}

func (c *classifier) Measurements(map[string]cube.Measurement) map[string]cube.Measurement {
	return map[string]cube.Measurement{c.band: cube.Binary(c.band)}
}

func init() {
	register("sklearn_cultivated_classification", newClassifier("sklearn_cultivated_classification", "sklearn_cultivated", cultivatedFeatures))
	register("sklearn_species5_classification", newClassifier("sklearn_species5_classification", "sklearn_species5", species5Features))
	simple("cultman_agr_cat", func(_ context.Context, data *cube.Dataset) (*cube.Layer, error) {
		in, err := inputs(data, 3)
		if err != nil {
			return nil, err
		}
		// the cultivated model labels cultivated land 2
		return combine(func(v []float32) float32 {
			return flag(v[0]*v[1]-v[2] == 2)
		}, in[0], fill(in[1]), fill(in[2]))
	})
}
