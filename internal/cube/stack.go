package cube

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/livingwales/vproducts/internal/compute"
)

// Stack is one band over time. Slices[i] is the row-major grid observed at
// Times[i].
type Stack struct {
	Grid
	Times  []time.Time
	Slices [][]float32
}

// NewStack returns an empty stack over g.
func NewStack(g Grid) *Stack {
	return &Stack{Grid: g}
}

// StackOf builds a stack from layers that share a grid.
func StackOf(times []time.Time, layers ...*Layer) (*Stack, error) {
	if len(times) != len(layers) {
		return nil, fmt.Errorf("%d times for %d layers", len(times), len(layers))
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("stack of no layers")
	}
	s := NewStack(layers[0].Grid)
	for i, l := range layers {
		if err := s.AppendLayer(times[i], l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of time slices.
func (s *Stack) Len() int { return len(s.Slices) }

// Append adds a time slice. The data is not copied.
func (s *Stack) Append(t time.Time, data []float32) error {
	if len(data) != s.Grid.Len() {
		return fmt.Errorf("slice at %s has %d values for %d pixels: %w", t.Format(DateLayout), len(data), s.Grid.Len(), ErrGridMismatch)
	}
	s.Times = append(s.Times, t)
	s.Slices = append(s.Slices, data)
	return nil
}

// AppendLayer adds l as a time slice after checking its grid.
func (s *Stack) AppendLayer(t time.Time, l *Layer) error {
	if !s.Grid.Equal(l.Grid) {
		return ErrGridMismatch
	}
	return s.Append(t, l.Data)
}

// Slice returns time slice i as a layer sharing the stack's memory.
func (s *Stack) Slice(i int) (*Layer, error) {
	if i < 0 || i >= len(s.Slices) {
		return nil, fmt.Errorf("time index %d out of range [0, %d)", i, len(s.Slices))
	}
	return &Layer{Grid: s.Grid, Data: s.Slices[i]}, nil
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	out := &Stack{Grid: s.Grid, Times: append([]time.Time(nil), s.Times...)}
	out.Slices = make([][]float32, len(s.Slices))
	for i, sl := range s.Slices {
		out.Slices[i] = append([]float32(nil), sl...)
	}
	return out
}

// Filter keeps the slices whose timestamp satisfies keep. Slice data is shared.
func (s *Stack) Filter(keep func(time.Time) bool) *Stack {
	out := NewStack(s.Grid)
	for i, t := range s.Times {
		if keep(t) {
			out.Times = append(out.Times, t)
			out.Slices = append(out.Slices, s.Slices[i])
		}
	}
	return out
}

// Range keeps the slices observed inside r.
func (s *Stack) Range(r DateRange) *Stack {
	return s.Filter(r.Contains)
}

// Months keeps the slices observed in months from..to inclusive of any year.
func (s *Stack) Months(from, to time.Month) *Stack {
	return s.Filter(func(t time.Time) bool {
		m := t.UTC().Month()
		return m >= from && m <= to
	})
}

// Year keeps the slices observed in year.
func (s *Stack) Year(year int) *Stack {
	return s.Filter(func(t time.Time) bool { return t.UTC().Year() == year })
}

// Years returns the distinct observation years in ascending order.
func (s *Stack) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, t := range s.Times {
		y := t.UTC().Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}

// Map applies fn to every value of every slice.
func (s *Stack) Map(fn func(float32) float32) *Stack {
	out := &Stack{Grid: s.Grid, Times: append([]time.Time(nil), s.Times...)}
	out.Slices = make([][]float32, len(s.Slices))
	for i, sl := range s.Slices {
		d := make([]float32, len(sl))
		for j, v := range sl {
			d[j] = fn(v)
		}
		out.Slices[i] = d
	}
	return out
}

// Where keeps values for which keep returns true and sets the rest to nodata.
func (s *Stack) Where(keep func(float32) bool) *Stack {
	return s.Map(func(v float32) float32 {
		if keep(v) {
			return v
		}
		return NaN
	})
}

// Zip combines two stacks of the same shape slice by slice.
func (s *Stack) Zip(o *Stack, fn func(a, b float32) float32) (*Stack, error) {
	if !s.Grid.Equal(o.Grid) || len(s.Slices) != len(o.Slices) {
		return nil, ErrGridMismatch
	}
	out := &Stack{Grid: s.Grid, Times: append([]time.Time(nil), s.Times...)}
	out.Slices = make([][]float32, len(s.Slices))
	for i := range s.Slices {
		a, b := s.Slices[i], o.Slices[i]
		d := make([]float32, len(a))
		for j := range a {
			d[j] = fn(a[j], b[j])
		}
		out.Slices[i] = d
	}
	return out, nil
}

// Clip returns the part of s inside e.
func (s *Stack) Clip(e Extent) (*Stack, error) {
	g, cols, rows, err := s.Grid.Clip(e)
	if err != nil {
		return nil, err
	}
	out := &Stack{Grid: g, Times: append([]time.Time(nil), s.Times...)}
	for _, sl := range s.Slices {
		out.Slices = append(out.Slices, clipData(sl, s.Width(), cols, rows))
	}
	return out, nil
}

// Series extracts the time series of pixel (col, row).
func (s *Stack) Series(col, row int) Series {
	idx := s.Index(col, row)
	out := Series{Times: append([]time.Time(nil), s.Times...), Values: make([]float64, len(s.Slices))}
	for i, sl := range s.Slices {
		out.Values[i] = float64(sl[idx])
	}
	return out
}

// Concat joins stacks on the same grid along time, keeping argument order.
func Concat(stacks ...*Stack) (*Stack, error) {
	if len(stacks) == 0 {
		return nil, fmt.Errorf("concat of no stacks")
	}
	out := NewStack(stacks[0].Grid)
	for _, s := range stacks {
		if !out.Grid.Equal(s.Grid) {
			return nil, ErrGridMismatch
		}
		out.Times = append(out.Times, s.Times...)
		out.Slices = append(out.Slices, s.Slices...)
	}
	return out, nil
}

// Progression compares each slice with the one before it:
// 2*cur - prev with nodata read as 0. Pixels that stay 0 become nodata, so on
// binary input 2 marks new pixels, 1 persisting pixels and -1 lost pixels.
// The result carries the timestamps of slices 1..n-1.
func Progression(s *Stack) (*Stack, error) {
	if s.Len() < 2 {
		return nil, fmt.Errorf("progression needs at least two time slices, got %d", s.Len())
	}
	out := NewStack(s.Grid)
	for i := 1; i < s.Len(); i++ {
		prev, cur := s.Slices[i-1], s.Slices[i]
		d := make([]float32, len(cur))
		for j := range cur {
			v := 2*fill0(cur[j]) - fill0(prev[j])
			if v == 0 {
				v = NaN
			}
			d[j] = v
		}
		out.Times = append(out.Times, s.Times[i])
		out.Slices = append(out.Slices, d)
	}
	return out, nil
}

// ReduceByDay merges acquisitions that fall on the same calendar day using a
// nodata-aware mean. Days are returned in order of first appearance.
func ReduceByDay(ctx context.Context, s *Stack) (*Stack, error) {
	var days []time.Time
	groups := make(map[time.Time][]int)
	for i, t := range s.Times {
		d := truncateDay(t)
		if _, ok := groups[d]; !ok {
			days = append(days, d)
		}
		groups[d] = append(groups[d], i)
	}
	out := NewStack(s.Grid)
	for _, d := range days {
		idx := groups[d]
		if len(idx) == 1 {
			out.Times = append(out.Times, d)
			out.Slices = append(out.Slices, s.Slices[idx[0]])
			continue
		}
		sub := &Stack{Grid: s.Grid}
		for _, i := range idx {
			sub.Times = append(sub.Times, s.Times[i])
			sub.Slices = append(sub.Slices, s.Slices[i])
		}
		mean, err := sub.Mean(ctx)
		if err != nil {
			return nil, err
		}
		out.Times = append(out.Times, d)
		out.Slices = append(out.Slices, mean.Data)
	}
	return out, nil
}

// CleanAcquisitions returns the indices of the slices of a 0/1 clean mask in
// which the share of clean pixels is at least minFraction.
func CleanAcquisitions(mask *Stack, minFraction float64) []int {
	var out []int
	n := mask.Grid.Len()
	if n == 0 {
		return nil
	}
	for i, sl := range mask.Slices {
		clean := 0
		for _, v := range sl {
			if v == 1 {
				clean++
			}
		}
		if float64(clean)/float64(n) >= minFraction {
			out = append(out, i)
		}
	}
	return out
}

func fill0(v float32) float32 {
	if IsNaN(v) {
		return 0
	}
	return v
}

// reduce applies fn to each pixel's values over time in parallel row chunks.
func (s *Stack) reduce(ctx context.Context, fn func(vals []float32) float32) (*Layer, error) {
	out := &Layer{Grid: s.Grid, Data: make([]float32, s.Grid.Len())}
	w := s.Width()
	err := compute.Rows(ctx, s.Height(), func(r0, r1 int) error {
		vals := make([]float32, len(s.Slices))
		for i := r0 * w; i < r1*w; i++ {
			for t, sl := range s.Slices {
				vals[t] = sl[i]
			}
			out.Data[i] = fn(vals)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
