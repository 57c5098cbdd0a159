// Package morph implements the binary morphology and speckle filtering used
// on classified layers: opening, disk dilation and the lone object filter.
package morph

import (
	"fmt"
	"sort"

	"github.com/livingwales/vproducts/internal/cube"
)

// Structure is a structuring element. It must have odd dimensions and is
// centred on its middle cell.
type Structure [][]bool

// Square returns an n x n structure of ones.
func Square(n int) Structure {
	s := make(Structure, n)
	for i := range s {
		s[i] = make([]bool, n)
		for j := range s[i] {
			s[i][j] = true
		}
	}
	return s
}

// Disk returns the (2r+1)-wide structure with x^2+y^2 <= (r+0.5)^2.
func Disk(r int) Structure {
	n := 2*r + 1
	lim := (float64(r) + 0.5) * (float64(r) + 0.5)
	s := make(Structure, n)
	for i := range s {
		s[i] = make([]bool, n)
		for j := range s[i] {
			dy, dx := float64(i-r), float64(j-r)
			s[i][j] = dx*dx+dy*dy <= lim
		}
	}
	return s
}

// Circle returns the circular neighbourhood of a modal filter with the
// given diameter: cells within diameter/2 of the centre cell.
func Circle(diameter int) Structure {
	c := diameter / 2
	r := float64(c)
	s := make(Structure, diameter)
	for i := range s {
		s[i] = make([]bool, diameter)
		for j := range s[i] {
			dy, dx := float64(i-c), float64(j-c)
			s[i][j] = dx*dx+dy*dy <= r*r
		}
	}
	return s
}

func (s Structure) validate() error {
	if len(s) == 0 || len(s)%2 == 0 {
		return fmt.Errorf("structure must have an odd number of rows, got %d", len(s))
	}
	for _, row := range s {
		if len(row) != len(s[0]) || len(row)%2 == 0 {
			return fmt.Errorf("structure rows must share an odd width")
		}
	}
	return nil
}

func (s Structure) offsets() [][2]int {
	cy, cx := len(s)/2, len(s[0])/2
	var out [][2]int
	for i, row := range s {
		for j, on := range row {
			if on {
				out = append(out, [2]int{i - cy, j - cx})
			}
		}
	}
	return out
}

// Erode keeps a cell when every structure cell around it is set. Cells
// outside the image count as unset.
func Erode(mask []bool, w, h int, s Structure) ([]bool, error) {
	if err := check(mask, w, h, s); err != nil {
		return nil, err
	}
	offs := s.offsets()
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			keep := true
			for _, o := range offs {
				yy, xx := y+o[0], x+o[1]
				if yy < 0 || yy >= h || xx < 0 || xx >= w || !mask[yy*w+xx] {
					keep = false
					break
				}
			}
			out[y*w+x] = keep
		}
	}
	return out, nil
}

// DilateWith sets a cell when any structure cell around it is set.
func DilateWith(mask []bool, w, h int, s Structure) ([]bool, error) {
	if err := check(mask, w, h, s); err != nil {
		return nil, err
	}
	offs := s.offsets()
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			for _, o := range offs {
				yy, xx := y+o[0], x+o[1]
				if yy >= 0 && yy < h && xx >= 0 && xx < w {
					out[yy*w+xx] = true
				}
			}
		}
	}
	return out, nil
}

// BinaryOpening erodes then dilates mask, removing features smaller than
// the structure.
func BinaryOpening(mask []bool, w, h int, s Structure) ([]bool, error) {
	eroded, err := Erode(mask, w, h, s)
	if err != nil {
		return nil, err
	}
	return DilateWith(eroded, w, h, s)
}

// Dilate dilates mask with a disk of the given radius. With invert the
// unset cells are dilated instead and the result is inverted back, which
// shrinks the set region.
func Dilate(mask []bool, w, h, radius int, invert bool) ([]bool, error) {
	in := mask
	if invert {
		in = not(mask)
	}
	out, err := DilateWith(in, w, h, Disk(radius))
	if err != nil {
		return nil, err
	}
	if invert {
		out = not(out)
	}
	return out, nil
}

// LoneObjectFilter replaces connected regions of equal value smaller than
// minSize pixels with the most common value of a circular neighbourhood of
// diameter kernelSize. Connectivity 1 joins edge neighbours, 2 also joins
// diagonal ones. Nodata pixels are left as they are and do not vote.
func LoneObjectFilter(l *cube.Layer, minSize, connectivity, kernelSize int) (*cube.Layer, error) {
	if connectivity != 1 && connectivity != 2 {
		return nil, fmt.Errorf("connectivity must be 1 or 2, got %d", connectivity)
	}
	if kernelSize < 1 {
		return nil, fmt.Errorf("kernel size must be positive, got %d", kernelSize)
	}
	w, h := l.Width(), l.Height()
	modal := modalFilter(l.Data, w, h, Circle(kernelSize))

	out := l.Clone()
	seen := make([]bool, len(l.Data))
	var queue, region []int
	for start, v := range l.Data {
		if seen[start] || cube.IsNaN(v) {
			continue
		}
		// flood fill the region of value v
		region = region[:0]
		queue = append(queue[:0], start)
		seen[start] = true
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			region = append(region, i)
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 || connectivity == 1 && dx != 0 && dy != 0 {
						continue
					}
					xx, yy := x+dx, y+dy
					if xx < 0 || xx >= w || yy < 0 || yy >= h {
						continue
					}
					j := yy*w + xx
					if !seen[j] && l.Data[j] == v {
						seen[j] = true
						queue = append(queue, j)
					}
				}
			}
		}
		if len(region) < minSize {
			for _, i := range region {
				out.Data[i] = modal[i]
			}
		}
	}
	return out, nil
}

// modalFilter returns, for every pixel, the most frequent valid value in the
// neighbourhood s. Ties resolve to the smallest value.
func modalFilter(data []float32, w, h int, s Structure) []float32 {
	offs := s.offsets()
	out := make([]float32, len(data))
	counts := make(map[float32]int)
	var keys []float32
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := range counts {
				delete(counts, k)
			}
			for _, o := range offs {
				yy, xx := y+o[0], x+o[1]
				if yy < 0 || yy >= h || xx < 0 || xx >= w {
					continue
				}
				v := data[yy*w+xx]
				if !cube.IsNaN(v) {
					counts[v]++
				}
			}
			if len(counts) == 0 {
				out[y*w+x] = data[y*w+x]
				continue
			}
			keys = keys[:0]
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
			best := keys[0]
			for _, k := range keys[1:] {
				if counts[k] > counts[best] {
					best = k
				}
			}
			out[y*w+x] = best
		}
	}
	return out
}

func check(mask []bool, w, h int, s Structure) error {
	if len(mask) != w*h {
		return fmt.Errorf("mask has %d cells for a %dx%d image", len(mask), w, h)
	}
	return s.validate()
}

func not(mask []bool) []bool {
	out := make([]bool, len(mask))
	for i, v := range mask {
		out[i] = !v
	}
	return out
}

// FromLayer returns the cells of l that are set (non-nodata and non-zero).
func FromLayer(l *cube.Layer) []bool {
	out := make([]bool, len(l.Data))
	for i, v := range l.Data {
		out[i] = !cube.IsNaN(v) && v != 0
	}
	return out
}
