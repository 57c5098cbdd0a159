// Package render draws layers as PNG heatmaps and time series as HTML charts.
package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/livingwales/vproducts/internal/cube"
)

// PNG size of rendered layers.
const (
	LayerWidth  = 8 * vg.Inch
	LayerHeight = 8 * vg.Inch
)

// layerGrid adapts a layer to plotter.GridXYZ. Rows are flipped so that Y
// increases with the row index.
type layerGrid struct {
	l *cube.Layer
}

func (g layerGrid) Dims() (c, r int) { return g.l.Width(), g.l.Height() }

func (g layerGrid) Z(c, r int) float64 {
	return float64(g.l.At(c, g.l.Height()-1-r))
}

func (g layerGrid) X(c int) float64 { return g.l.Grid.X[c] }

func (g layerGrid) Y(r int) float64 { return g.l.Grid.Y[g.l.Height()-1-r] }

// valueRange returns the range of the valid values of l, widened around a
// constant value so the palette stays defined. An empty layer gives [0, 1].
func valueRange(l *cube.Layer) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range l.Data {
		if cube.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, float64(v))
		hi = math.Max(hi, float64(v))
	}
	switch {
	case math.IsInf(lo, 1):
		return 0, 1
	case lo == hi:
		return lo - 0.5, hi + 0.5
	}
	return lo, hi
}

// LayerPNG draws l as a heatmap. Nodata pixels are transparent.
func LayerPNG(w io.Writer, l *cube.Layer, title string) error {
	if l.Width() == 0 || l.Height() == 0 {
		return fmt.Errorf("cannot render an empty layer")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (" + l.CRS + ")"
	p.Y.Label.Text = "Y"

	pal := moreland.ExtendedBlackBody().Palette(255)
	hm := plotter.NewHeatMap(layerGrid{l}, pal)
	hm.Min, hm.Max = valueRange(l)
	hm.NaN = color.Transparent
	p.Add(hm)
	addLegend(p, pal, hm.Min, hm.Max)

	wt, err := p.WriterTo(LayerWidth, LayerHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", title, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", title, err)
	}
	return nil
}

// addLegend adds the low and high ends of the colour scale to the legend.
func addLegend(p *plot.Plot, pal palette.Palette, lo, hi float64) {
	colors := pal.Colors()
	if len(colors) == 0 {
		return
	}
	for _, e := range []struct {
		label string
		c     color.Color
	}{
		{fmt.Sprintf("%.3g", hi), colors[len(colors)-1]},
		{fmt.Sprintf("%.3g", lo), colors[0]},
	} {
		thumb, err := plotter.NewPolygon(plotter.XYs{})
		if err != nil {
			continue
		}
		thumb.Color = e.c
		thumb.LineStyle.Width = 0
		p.Legend.Add(e.label, thumb)
	}
	p.Legend.Top = true
}
