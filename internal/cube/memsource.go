package cube

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySource serves datasets held in memory. It applies the same time,
// band and extent selection as the catalog.
type MemorySource struct {
	mu       sync.RWMutex
	products map[string]*Dataset
}

func NewMemorySource() *MemorySource {
	return &MemorySource{products: make(map[string]*Dataset)}
}

// Put registers ds under product, replacing any previous dataset.
func (m *MemorySource) Put(product string, ds *Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product] = ds
}

// Products returns the registered product names.
func (m *MemorySource) Products() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.products))
	for p := range m.products {
		out = append(out, p)
	}
	return out
}

func (m *MemorySource) Load(ctx context.Context, q Query) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	ds, ok := m.products[q.Product]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("product %q: %w", q.Product, ErrNoData)
	}
	return Select(ds, q)
}

// Select applies the time, measurement and extent parts of q to ds.
func Select(ds *Dataset, q Query) (*Dataset, error) {
	var keep []int
	for i, t := range ds.Times {
		if q.Time.Contains(t) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("product %q in %s: %w", q.Product, q.Time, ErrNoData)
	}

	bands := q.Measurements
	if len(bands) == 0 {
		bands = ds.Bands()
	}
	times := make([]time.Time, len(keep))
	for i, k := range keep {
		times[i] = ds.Times[k]
	}
	out := NewDataset(ds.Grid, times)
	for _, b := range bands {
		src, err := ds.Band(b)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", q.Product, err)
		}
		s := NewStack(ds.Grid)
		for _, k := range keep {
			s.Times = append(s.Times, src.Times[k])
			s.Slices = append(s.Slices, src.Slices[k])
		}
		if err := out.SetBand(b, s); err != nil {
			return nil, err
		}
	}

	if q.Extent != nil {
		clipped, err := out.Clip(*q.Extent)
		if err != nil {
			return nil, err
		}
		if clipped.Grid.Len() == 0 {
			return nil, fmt.Errorf("product %q outside %s: %w", q.Product, q.Extent, ErrNoData)
		}
		out = clipped
	}
	return out, nil
}
