package cube

import (
	"fmt"
	"math"
)

// NaN is the float32 nodata value.
var NaN = float32(math.NaN())

// IsNaN reports whether v is nodata.
func IsNaN(v float32) bool { return v != v }

// Layer is a single two-dimensional band. Data is row-major over Grid.
type Layer struct {
	Grid
	Data []float32
}

// NewLayer returns a layer over g filled with nodata.
func NewLayer(g Grid) *Layer {
	return Full(g, NaN)
}

// Full returns a layer over g filled with v.
func Full(g Grid, v float32) *Layer {
	data := make([]float32, g.Len())
	for i := range data {
		data[i] = v
	}
	return &Layer{Grid: g, Data: data}
}

// LayerFrom wraps data without copying. The slice length must match g.
func LayerFrom(g Grid, data []float32) (*Layer, error) {
	if len(data) != g.Len() {
		return nil, fmt.Errorf("layer data has %d values for a %dx%d grid: %w", len(data), g.Width(), g.Height(), ErrGridMismatch)
	}
	return &Layer{Grid: g, Data: data}, nil
}

// At returns the value at (col, row).
func (l *Layer) At(col, row int) float32 { return l.Data[l.Index(col, row)] }

// Set stores v at (col, row).
func (l *Layer) Set(col, row int, v float32) { l.Data[l.Index(col, row)] = v }

// Clone returns a deep copy.
func (l *Layer) Clone() *Layer {
	data := make([]float32, len(l.Data))
	copy(data, l.Data)
	return &Layer{Grid: l.Grid, Data: data}
}

// Map applies fn to every value, nodata included.
func (l *Layer) Map(fn func(float32) float32) *Layer {
	out := &Layer{Grid: l.Grid, Data: make([]float32, len(l.Data))}
	for i, v := range l.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Where keeps values for which keep returns true and sets the rest to nodata.
// Comparisons against NaN are false, so nodata stays nodata under ordinary
// threshold predicates.
func (l *Layer) Where(keep func(float32) bool) *Layer {
	return l.Map(func(v float32) float32 {
		if keep(v) {
			return v
		}
		return NaN
	})
}

// WhereMask keeps values where the corresponding mask value is true.
func (l *Layer) WhereMask(mask []bool) (*Layer, error) {
	if len(mask) != len(l.Data) {
		return nil, fmt.Errorf("mask has %d values for %d pixels: %w", len(mask), len(l.Data), ErrGridMismatch)
	}
	out := l.Clone()
	for i, keep := range mask {
		if !keep {
			out.Data[i] = NaN
		}
	}
	return out, nil
}

// FillNaN replaces nodata with v.
func (l *Layer) FillNaN(v float32) *Layer {
	return l.Map(func(x float32) float32 {
		if IsNaN(x) {
			return v
		}
		return x
	})
}

// Binarize sets strictly positive values to 1 and everything else to nodata.
func (l *Layer) Binarize() *Layer {
	return l.Map(func(v float32) float32 {
		if v > 0 {
			return 1
		}
		return NaN
	})
}

// Count returns the number of valid pixels.
func (l *Layer) Count() int {
	n := 0
	for _, v := range l.Data {
		if !IsNaN(v) {
			n++
		}
	}
	return n
}

// Sum returns the sum of valid pixels.
func (l *Layer) Sum() float64 {
	var s float64
	for _, v := range l.Data {
		if !IsNaN(v) {
			s += float64(v)
		}
	}
	return s
}

// Values returns the valid pixels as float64.
func (l *Layer) Values() []float64 {
	out := make([]float64, 0, len(l.Data))
	for _, v := range l.Data {
		if !IsNaN(v) {
			out = append(out, float64(v))
		}
	}
	return out
}

// Unique returns the distinct valid values with their pixel counts.
func (l *Layer) Unique() map[float32]int {
	out := make(map[float32]int)
	for _, v := range l.Data {
		if !IsNaN(v) {
			out[v]++
		}
	}
	return out
}

// Clip returns the part of l inside e.
func (l *Layer) Clip(e Extent) (*Layer, error) {
	g, cols, rows, err := l.Grid.Clip(e)
	if err != nil {
		return nil, err
	}
	return &Layer{Grid: g, Data: clipData(l.Data, l.Width(), cols, rows)}, nil
}

// Zip combines two layers on the same grid pixel by pixel.
func Zip(a, b *Layer, fn func(a, b float32) float32) (*Layer, error) {
	if !a.Grid.Equal(b.Grid) {
		return nil, ErrGridMismatch
	}
	out := &Layer{Grid: a.Grid, Data: make([]float32, len(a.Data))}
	for i := range a.Data {
		out.Data[i] = fn(a.Data[i], b.Data[i])
	}
	return out, nil
}

// Add returns a + b; nodata in either operand propagates.
func Add(a, b *Layer) (*Layer, error) {
	return Zip(a, b, func(x, y float32) float32 { return x + y })
}

// Sub returns a - b; nodata in either operand propagates.
func Sub(a, b *Layer) (*Layer, error) {
	return Zip(a, b, func(x, y float32) float32 { return x - y })
}

// Mul returns a * b; nodata in either operand propagates.
func Mul(a, b *Layer) (*Layer, error) {
	return Zip(a, b, func(x, y float32) float32 { return x * y })
}

// Sum adds any number of layers; nodata propagates.
func Sum(layers ...*Layer) (*Layer, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("sum of no layers")
	}
	out := layers[0].Clone()
	for _, l := range layers[1:] {
		var err error
		if out, err = Add(out, l); err != nil {
			return nil, err
		}
	}
	return out, nil
}
