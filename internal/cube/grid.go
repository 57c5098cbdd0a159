// Package cube provides labelled raster arrays: time-indexed stacks of
// single-band grids addressed by band name. NaN marks nodata throughout.
package cube

import (
	"errors"
	"fmt"
	"math"
)

// ErrGridMismatch is returned when two arrays that must share a grid do not.
var ErrGridMismatch = errors.New("grid mismatch")

// coordTolerance is the allowed drift when comparing pixel centres.
const coordTolerance = 1e-6

// Grid holds pixel-centre coordinates. X runs west to east, Y runs north to
// south, so row 0 is the top of the image.
type Grid struct {
	X   []float64 `json:"x"`
	Y   []float64 `json:"y"`
	CRS string    `json:"crs"`
}

// NewGrid builds a regular grid whose top-left corner is (minX, maxY).
func NewGrid(minX, maxY, res float64, width, height int, crs string) Grid {
	g := Grid{X: make([]float64, width), Y: make([]float64, height), CRS: crs}
	for i := range g.X {
		g.X[i] = minX + (float64(i)+0.5)*res
	}
	for j := range g.Y {
		g.Y[j] = maxY - (float64(j)+0.5)*res
	}
	return g
}

func (g Grid) Width() int  { return len(g.X) }
func (g Grid) Height() int { return len(g.Y) }
func (g Grid) Len() int    { return len(g.X) * len(g.Y) }

// Index returns the row-major offset of pixel (col, row).
func (g Grid) Index(col, row int) int { return row*len(g.X) + col }

// Resolution returns the pixel edge length along X, or 0 for grids narrower
// than two pixels.
func (g Grid) Resolution() float64 {
	if len(g.X) < 2 {
		if len(g.Y) < 2 {
			return 0
		}
		return math.Abs(g.Y[1] - g.Y[0])
	}
	return math.Abs(g.X[1] - g.X[0])
}

// Equal reports whether g and o describe the same pixels. An empty CRS on
// either side matches any CRS.
func (g Grid) Equal(o Grid) bool {
	if g.CRS != "" && o.CRS != "" && g.CRS != o.CRS {
		return false
	}
	if len(g.X) != len(o.X) || len(g.Y) != len(o.Y) {
		return false
	}
	for i := range g.X {
		if math.Abs(g.X[i]-o.X[i]) > coordTolerance {
			return false
		}
	}
	for i := range g.Y {
		if math.Abs(g.Y[i]-o.Y[i]) > coordTolerance {
			return false
		}
	}
	return true
}

// Extent returns the bounding box of the pixel centres.
func (g Grid) Extent() Extent {
	e := Extent{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1), CRS: g.CRS}
	for _, x := range g.X {
		e.MinX = math.Min(e.MinX, x)
		e.MaxX = math.Max(e.MaxX, x)
	}
	for _, y := range g.Y {
		e.MinY = math.Min(e.MinY, y)
		e.MaxY = math.Max(e.MaxY, y)
	}
	return e
}

// Clip keeps the columns and rows whose centres fall inside e (inclusive).
// It returns the clipped grid and the kept source column and row indices.
func (g Grid) Clip(e Extent) (Grid, []int, []int, error) {
	if e.CRS != "" && g.CRS != "" && e.CRS != g.CRS {
		return Grid{}, nil, nil, fmt.Errorf("cannot clip %s grid with %s extent: reprojection not supported", g.CRS, e.CRS)
	}
	out := Grid{CRS: g.CRS}
	var cols, rows []int
	for i, x := range g.X {
		if x >= e.MinX && x <= e.MaxX {
			cols = append(cols, i)
			out.X = append(out.X, x)
		}
	}
	for j, y := range g.Y {
		if y >= e.MinY && y <= e.MaxY {
			rows = append(rows, j)
			out.Y = append(out.Y, y)
		}
	}
	return out, cols, rows, nil
}

// Extent is an axis-aligned bounding box in the units of CRS.
type Extent struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
	CRS  string  `json:"crs"`
}

// Valid reports whether the box has non-negative width and height.
func (e Extent) Valid() bool { return e.MaxX >= e.MinX && e.MaxY >= e.MinY }

// Contains reports whether (x, y) lies inside the box, edges included.
func (e Extent) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// Intersects reports whether the two boxes overlap.
func (e Extent) Intersects(o Extent) bool {
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX && e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

func (e Extent) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g) %s", e.MinX, e.MinY, e.MaxX, e.MaxY, e.CRS)
}

// clipData copies the selected columns and rows of a row-major slice.
func clipData(src []float32, width int, cols, rows []int) []float32 {
	out := make([]float32, 0, len(cols)*len(rows))
	for _, r := range rows {
		base := r * width
		for _, c := range cols {
			out = append(out, src[base+c])
		}
	}
	return out
}
