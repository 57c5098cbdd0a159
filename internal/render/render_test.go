package render

import (
	"bytes"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livingwales/vproducts/internal/cube"
)

func TestValueRange(t *testing.T) {
	t.Parallel()
	g := cube.NewGrid(0, 20, 10, 2, 2, "EPSG:27700")
	tests := []struct {
		name   string
		data   []float32
		lo, hi float64
	}{
		{"mixed", []float32{1, cube.NaN, -2, 4}, -2, 4},
		{"constant", []float32{1, 1, cube.NaN, 1}, 0.5, 1.5},
		{"empty", []float32{cube.NaN, cube.NaN, cube.NaN, cube.NaN}, 0, 1},
	}
	for _, tt := range tests {
		l, err := cube.LayerFrom(g, tt.data)
		require.NoError(t, err)
		lo, hi := valueRange(l)
		assert.Equal(t, tt.lo, lo, tt.name)
		assert.Equal(t, tt.hi, hi, tt.name)
	}
}

func TestLayerGridFlipsRows(t *testing.T) {
	t.Parallel()
	g := cube.NewGrid(0, 20, 10, 2, 2, "EPSG:27700")
	l, err := cube.LayerFrom(g, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	lg := layerGrid{l}
	c, r := lg.Dims()
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, r)
	// row 0 of the plot is the southern row of the layer
	assert.Equal(t, 3.0, lg.Z(0, 0))
	assert.Equal(t, 5.0, lg.Y(0))
	assert.Equal(t, 15.0, lg.Y(1))
	assert.Equal(t, 15.0, lg.X(1))
}

func TestLayerPNG(t *testing.T) {
	t.Parallel()
	g := cube.NewGrid(0, 30, 10, 3, 3, "EPSG:27700")
	l, err := cube.LayerFrom(g, []float32{1, 0, cube.NaN, 1, 1, 0, 0, 0, 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, LayerPNG(&buf, l, "water"))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)

	buf.Reset()
	require.NoError(t, LayerPNG(&buf, cube.Full(g, 1), "constant"))

	assert.Error(t, LayerPNG(&buf, &cube.Layer{}, "empty"))
}

func series(n int, f func(i int) float64) cube.Series {
	var s cube.Series
	start := time.Date(2020, 1, 1, 11, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.Times = append(s.Times, start.AddDate(0, 0, 12*i))
		s.Values = append(s.Values, f(i))
	}
	return s
}

func TestSeriesPage(t *testing.T) {
	t.Parallel()
	area := series(5, func(i int) float64 {
		if i == 2 {
			return math.NaN()
		}
		return float64(i) * 1.5
	})
	var buf bytes.Buffer
	require.NoError(t, SeriesPage(&buf, "Burnt area", Named{"Glanaman", area}))
	html := buf.String()
	assert.Contains(t, html, "Burnt area")
	assert.Contains(t, html, "Glanaman")
	assert.Contains(t, html, "2020-01-13T11:00:00Z")
	assert.NotContains(t, html, "NaN")

	assert.Error(t, SeriesPage(&buf, "nothing"))
}

func TestCropPage(t *testing.T) {
	t.Parallel()
	vh := series(10, func(i int) float64 { return -15 - float64(i%3) })
	vv := series(10, func(i int) float64 { return -8 })
	ratio := vh.Sub(vv)
	var buf bytes.Buffer
	require.NoError(t, CropPage(&buf, "p-17", "Winter (ws_level10)", vh, vv, ratio))
	html := buf.String()
	assert.True(t, strings.Contains(html, "VH/VV"))
	assert.Contains(t, html, "Winter (ws_level10)")
	assert.Contains(t, html, "Parcel p-17")
}
