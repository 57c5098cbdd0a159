package recipe

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/livingwales/vproducts/internal/compute"
	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/products"
	"github.com/livingwales/vproducts/internal/timeutil"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run records one evaluation of a recipe.
type Run struct {
	ID       string    `json:"id"`
	Product  string    `json:"product"`
	Recipe   string    `json:"recipe"`
	Status   string    `json:"status"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Duration returns the run time, or zero while the run is in progress.
func (r Run) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// RunStore persists run records.
type RunStore interface {
	StartRun(ctx context.Context, r Run) error
	FinishRun(ctx context.Context, r Run) error
}

// Sink stores evaluated datasets as observations of a product.
type Sink interface {
	PutDataset(ctx context.Context, product string, ds *cube.Dataset) error
}

// Executor evaluates recipes. Runs and Sink are optional.
type Executor struct {
	Source cube.Source
	Runs   RunStore
	Sink   Sink
	Config *config.Config
	Clock  timeutil.Clock
}

// Result is an evaluated recipe.
type Result struct {
	Run  Run
	Data *cube.Dataset
}

// Execute evaluates r. The run is recorded whether or not evaluation
// succeeds; the returned error is the evaluation error.
func (e *Executor) Execute(ctx context.Context, r *Recipe) (*Result, error) {
	if e.Source == nil {
		return nil, fmt.Errorf("executor has no source")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Empty()
	}
	clock := timeutil.Or(e.Clock)

	run := Run{
		ID:      uuid.NewString(),
		Product: r.Name,
		Recipe:  r.Root.String(),
		Status:  StatusRunning,
		Started: clock.Now().UTC(),
	}
	if e.Runs != nil {
		if err := e.Runs.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}
	log.Printf("[recipe] run %s: %s = %s", run.ID, r.Name, run.Recipe)

	ctx = compute.WithPool(ctx, compute.Pool{Workers: cfg.GetWorkers(), ChunkRows: cfg.GetChunkRows()})
	ds, err := e.evaluate(ctx, r, cfg)
	if err == nil && r.Output != "" && e.Sink != nil {
		if err = e.Sink.PutDataset(ctx, r.Output, ds); err != nil {
			err = fmt.Errorf("failed to store %s: %w", r.Output, err)
		}
	}

	run.Finished = clock.Now().UTC()
	run.Status = StatusSucceeded
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
	}
	if e.Runs != nil {
		// the evaluation may have been cancelled; the record still has to land
		if ferr := e.Runs.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			log.Printf("[recipe] failed to record end of run %s: %v", run.ID, ferr)
		}
	}
	log.Printf("[recipe] run %s %s in %s", run.ID, run.Status, run.Duration().Round(time.Millisecond))
	if err != nil {
		return &Result{Run: run}, err
	}
	return &Result{Run: run, Data: ds}, nil
}

func (e *Executor) evaluate(ctx context.Context, r *Recipe, cfg *config.Config) (*cube.Dataset, error) {
	tr, err := r.DateRange()
	if err != nil {
		return nil, err
	}
	q := cube.Query{Time: tr, Resolution: r.Resolution}
	if r.Extent != nil {
		ext := r.Extent.extent()
		q.Extent = &ext
	}
	return e.node(ctx, r.Root, q, cfg)
}

func (e *Executor) node(ctx context.Context, n *Node, q cube.Query, cfg *config.Config) (*cube.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case n.Product != "":
		q.Product = n.Product
		q.Measurements = n.Measurements
		ds, err := e.Source.Load(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", n.Product, err)
		}
		return ds, nil
	case n.Transform != "":
		in, err := e.node(ctx, n.Input, q, cfg)
		if err != nil {
			return nil, err
		}
		t, err := products.New(n.Transform, products.Options{Config: cfg, Source: e.Source, Model: n.Args["model"]})
		if err != nil {
			return nil, err
		}
		return t.Compute(ctx, in)
	}
	parts := make([]*cube.Dataset, len(n.Collate))
	for i, c := range n.Collate {
		ds, err := e.node(ctx, c, q, cfg)
		if err != nil {
			return nil, err
		}
		parts[i] = ds
	}
	return Collate(parts...)
}

// Collate joins datasets along time in argument order. Single-band inputs
// take the band name of the first input; multi-band inputs must share band
// names.
func Collate(parts ...*cube.Dataset) (*cube.Dataset, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("collate of no datasets")
	}
	first := parts[0].Bands()
	if len(first) == 1 {
		renamed := make([]*cube.Dataset, len(parts))
		for i, p := range parts {
			name, s, err := p.Only()
			if err != nil {
				return nil, fmt.Errorf("collate input %d: %w", i, err)
			}
			if name == first[0] {
				renamed[i] = p
				continue
			}
			ds := cube.NewDataset(p.Grid, p.Times)
			if err := ds.SetBand(first[0], s); err != nil {
				return nil, err
			}
			renamed[i] = ds
		}
		parts = renamed
	}
	out, err := cube.ConcatTime(parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to collate: %w", err)
	}
	return out, nil
}
