// Package compute runs raster work in row chunks across a bounded set of
// goroutines. The active Pool travels in the context so nested helpers use the
// same limits. Each Rows or Each call bounds only its own goroutines.
package compute

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool describes how chunked work is scheduled.
type Pool struct {
	Workers   int // concurrent chunks; <= 0 means GOMAXPROCS
	ChunkRows int // rows per chunk; <= 0 means 256
}

// Default returns a Pool sized to the available CPUs.
func Default() Pool {
	return Pool{Workers: runtime.GOMAXPROCS(0), ChunkRows: 256}
}

func (p Pool) workers() int {
	if p.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}

func (p Pool) chunkRows() int {
	if p.ChunkRows <= 0 {
		return 256
	}
	return p.ChunkRows
}

type poolKey struct{}

// WithPool returns a context carrying p.
func WithPool(ctx context.Context, p Pool) context.Context {
	return context.WithValue(ctx, poolKey{}, p)
}

// FromContext returns the Pool stored in ctx, or Default when none is set.
func FromContext(ctx context.Context) Pool {
	if p, ok := ctx.Value(poolKey{}).(Pool); ok {
		return p
	}
	return Default()
}

// Rows splits [0, height) into chunks and calls fn for each half-open row
// range [r0, r1). Chunks run concurrently up to the pool's worker limit. The
// first error cancels the remaining chunks and is returned.
func Rows(ctx context.Context, height int, fn func(r0, r1 int) error) error {
	if height <= 0 {
		return ctx.Err()
	}
	p := FromContext(ctx)
	step := p.chunkRows()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for r0 := 0; r0 < height; r0 += step {
		r1 := r0 + step
		if r1 > height {
			r1 = height
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(r0, r1)
		})
	}
	return g.Wait()
}

// Each calls fn for every index in [0, n) using the pool's worker limit.
// It is intended for coarse items such as parcels or model trees.
func Each(ctx context.Context, n int, fn func(i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(FromContext(ctx).workers())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}
