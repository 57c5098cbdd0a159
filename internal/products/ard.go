package products

import (
	"context"

	"github.com/livingwales/vproducts/internal/ard"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
)

// prepare keeps the input bands and time axis, unlike the rules.
type prepare struct {
	name string
	fn   func(*cube.Dataset) (*cube.Dataset, error)
}

func (p *prepare) Name() string { return p.name }

func (p *prepare) Compute(ctx context.Context, data *cube.Dataset) (*cube.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := monitoring.Stage(p.name)
	defer done()
	return p.fn(data)
}

func (p *prepare) Measurements(map[string]cube.Measurement) map[string]cube.Measurement {
	return map[string]cube.Measurement{p.name: cube.Binary(p.name)}
}

func init() {
	register("s1_ard", func(Options) (Transformation, error) { return &prepare{"s1_ard", ard.S1}, nil })
	register("s2_ard", func(Options) (Transformation, error) { return &prepare{"s2_ard", ard.S2}, nil })
}
