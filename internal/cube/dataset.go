package cube

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingBand is returned when a named band is not present.
var ErrMissingBand = errors.New("missing band")

// Dataset is a set of named bands sharing one grid and one time axis.
// Reduced products carry a single zero timestamp.
type Dataset struct {
	Grid
	Times []time.Time
	order []string
	bands map[string]*Stack
}

// NewDataset returns an empty dataset over g with the given time axis.
func NewDataset(g Grid, times []time.Time) *Dataset {
	return &Dataset{Grid: g, Times: append([]time.Time(nil), times...), bands: make(map[string]*Stack)}
}

// FromLayers builds a single-time dataset whose bands are the given layers,
// in argument order of names.
func FromLayers(t time.Time, names []string, layers ...*Layer) (*Dataset, error) {
	if len(names) != len(layers) || len(layers) == 0 {
		return nil, fmt.Errorf("%d names for %d layers", len(names), len(layers))
	}
	ds := NewDataset(layers[0].Grid, []time.Time{t})
	for i, l := range layers {
		s := NewStack(l.Grid)
		if err := s.Append(t, l.Data); err != nil {
			return nil, err
		}
		if err := ds.SetBand(names[i], s); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// FromLayer builds a reduced single-band dataset.
func FromLayer(name string, l *Layer) *Dataset {
	ds, _ := FromLayers(time.Time{}, []string{name}, l)
	return ds
}

// Len returns the number of time slices.
func (d *Dataset) Len() int { return len(d.Times) }

// Bands returns the band names in insertion order.
func (d *Dataset) Bands() []string { return append([]string(nil), d.order...) }

// HasBand reports whether name is present.
func (d *Dataset) HasBand(name string) bool {
	_, ok := d.bands[name]
	return ok
}

// Band returns the named band.
func (d *Dataset) Band(name string) (*Stack, error) {
	s, ok := d.bands[name]
	if !ok {
		return nil, fmt.Errorf("band %q: %w", name, ErrMissingBand)
	}
	return s, nil
}

// SetBand adds or replaces a band. Its grid and time axis must match.
func (d *Dataset) SetBand(name string, s *Stack) error {
	if !d.Grid.Equal(s.Grid) {
		return fmt.Errorf("band %q: %w", name, ErrGridMismatch)
	}
	if len(s.Slices) != len(d.Times) {
		return fmt.Errorf("band %q has %d slices, dataset has %d times", name, len(s.Slices), len(d.Times))
	}
	if _, ok := d.bands[name]; !ok {
		d.order = append(d.order, name)
	}
	d.bands[name] = s
	return nil
}

// DropBand returns a copy of d without name. Band data is shared.
func (d *Dataset) DropBand(name string) *Dataset {
	out := NewDataset(d.Grid, d.Times)
	for _, b := range d.order {
		if b != name {
			out.order = append(out.order, b)
			out.bands[b] = d.bands[b]
		}
	}
	return out
}

// Select returns a copy of d holding only the named bands, in that order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	out := NewDataset(d.Grid, d.Times)
	for _, n := range names {
		s, err := d.Band(n)
		if err != nil {
			return nil, err
		}
		out.order = append(out.order, n)
		out.bands[n] = s
	}
	return out, nil
}

// Rename changes a band's name, keeping its position.
func (d *Dataset) Rename(from, to string) error {
	s, ok := d.bands[from]
	if !ok {
		return fmt.Errorf("band %q: %w", from, ErrMissingBand)
	}
	if from == to {
		return nil
	}
	if _, exists := d.bands[to]; exists {
		return fmt.Errorf("cannot rename %q to existing band %q", from, to)
	}
	delete(d.bands, from)
	d.bands[to] = s
	for i, b := range d.order {
		if b == from {
			d.order[i] = to
		}
	}
	return nil
}

// Isel returns time slice i of every band as a single-time dataset.
func (d *Dataset) Isel(i int) (*Dataset, error) {
	if i < 0 || i >= len(d.Times) {
		return nil, fmt.Errorf("time index %d out of range [0, %d)", i, len(d.Times))
	}
	out := NewDataset(d.Grid, d.Times[i:i+1])
	for _, b := range d.order {
		s := d.bands[b]
		out.order = append(out.order, b)
		out.bands[b] = &Stack{Grid: s.Grid, Times: s.Times[i : i+1], Slices: s.Slices[i : i+1]}
	}
	return out, nil
}

// Layer returns the only time slice of a band. The dataset must have exactly
// one time slice, as reduced products do.
func (d *Dataset) Layer(name string) (*Layer, error) {
	s, err := d.Band(name)
	if err != nil {
		return nil, err
	}
	if s.Len() != 1 {
		return nil, fmt.Errorf("band %q has %d time slices, cannot squeeze", name, s.Len())
	}
	return s.Slice(0)
}

// Only returns the single band of a one-band dataset.
func (d *Dataset) Only() (string, *Stack, error) {
	if len(d.order) != 1 {
		return "", nil, fmt.Errorf("expected one band, got %d (%v)", len(d.order), d.order)
	}
	return d.order[0], d.bands[d.order[0]], nil
}

// OnlyLayer returns the squeezed single band of a one-band, one-time dataset.
func (d *Dataset) OnlyLayer() (*Layer, error) {
	name, _, err := d.Only()
	if err != nil {
		return nil, err
	}
	return d.Layer(name)
}

// Map applies fn to every band.
func (d *Dataset) Map(fn func(name string, s *Stack) *Stack) (*Dataset, error) {
	out := NewDataset(d.Grid, d.Times)
	for _, b := range d.order {
		if err := out.SetBand(b, fn(b, d.bands[b])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FillNaN replaces nodata with v in every band.
func (d *Dataset) FillNaN(v float32) *Dataset {
	out, _ := d.Map(func(_ string, s *Stack) *Stack {
		return s.Map(func(x float32) float32 {
			if IsNaN(x) {
				return v
			}
			return x
		})
	})
	return out
}

// Clip returns the part of every band inside e.
func (d *Dataset) Clip(e Extent) (*Dataset, error) {
	g, _, _, err := d.Grid.Clip(e)
	if err != nil {
		return nil, err
	}
	out := NewDataset(g, d.Times)
	for _, b := range d.order {
		s, err := d.bands[b].Clip(e)
		if err != nil {
			return nil, err
		}
		if err := out.SetBand(b, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ConcatTime joins datasets with identical band sets along time.
func ConcatTime(parts ...*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat of no datasets")
	}
	first := parts[0]
	var times []time.Time
	for _, p := range parts {
		if !first.Grid.Equal(p.Grid) {
			return nil, ErrGridMismatch
		}
		if len(p.order) != len(first.order) {
			return nil, fmt.Errorf("cannot concat datasets with bands %v and %v", first.order, p.order)
		}
		times = append(times, p.Times...)
	}
	out := NewDataset(first.Grid, times)
	for _, b := range first.order {
		stacks := make([]*Stack, 0, len(parts))
		for _, p := range parts {
			s, err := p.Band(b)
			if err != nil {
				return nil, fmt.Errorf("cannot concat datasets with bands %v and %v: %w", first.order, p.order, err)
			}
			stacks = append(stacks, s)
		}
		joined, err := Concat(stacks...)
		if err != nil {
			return nil, err
		}
		if err := out.SetBand(b, joined); err != nil {
			return nil, err
		}
	}
	return out, nil
}
