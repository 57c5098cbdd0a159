package products

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
)

var nan = cube.NaN

func init() { monitoring.SetLogger(nil) }

var grid = cube.NewGrid(0, 10, 10, 4, 1, "EPSG:27700")

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 11, 0, 0, 0, time.UTC) }

// collated builds the single-band dataset a collate node hands to a
// combining transformation: one time slice per input product.
func collated(t *testing.T, slices ...[]float32) *cube.Dataset {
	t.Helper()
	times := make([]time.Time, len(slices))
	for i := range times {
		times[i] = day(2020, 1, 1+i)
	}
	return series(t, "band", times, slices...)
}

func series(t *testing.T, band string, times []time.Time, slices ...[]float32) *cube.Dataset {
	t.Helper()
	s := cube.NewStack(grid)
	for i, sl := range slices {
		require.NoError(t, s.Append(times[i], sl))
	}
	ds := cube.NewDataset(grid, times)
	require.NoError(t, ds.SetBand(band, s))
	return ds
}

func run(t *testing.T, name string, o Options, data *cube.Dataset) []float32 {
	t.Helper()
	tr, err := New(name, o)
	require.NoError(t, err)
	out, err := tr.Compute(context.Background(), data)
	require.NoError(t, err)
	l, err := out.Layer(name)
	if errors.Is(err, cube.ErrMissingBand) {
		l, err = out.OnlyLayer()
	}
	require.NoError(t, err)
	return l.Data
}

func assertData(t *testing.T, want, got []float32) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	names := Names()
	for _, n := range []string{
		"s1_ard", "s2_ard", "s1_water", "water", "water_cat", "aquatic_wat_cat",
		"s2_veg", "vegetat_veg_cat", "le_vegetat_veg_cat", "le_artific_urb_cat", "le_cultman_agr_cat",
		"lifeform_veg_cat", "s1_woody", "woody_s1_cat", "woody_nfi", "clear_cuts_s2", "woody_cat",
		"s1_artiwoody", "s2_artif", "artific_urb_cat", "cultman_agr_cat",
		"aquatic_peats", "aquatic_saltmarshes", "aquatic_veg_cat",
		"sklearn_cultivated_classification", "sklearn_species5_classification",
	} {
		assert.Contains(t, names, n)
	}
	assert.Len(t, names, 26)
	assert.IsIncreasing(t, names)

	_, err := New("no_such_product", Options{})
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestMeasurements(t *testing.T) {
	t.Parallel()
	tr, err := New("s1_artiwoody", Options{})
	require.NoError(t, err)
	m := tr.Measurements(nil)
	require.Contains(t, m, "art")
	assert.Equal(t, "float32", m["art"].DType)
	assert.Equal(t, "1", m["art"].Units)

	tr, err = New("le_cultman_agr_cat", Options{})
	require.NoError(t, err)
	assert.Contains(t, tr.Measurements(nil), "cultman_agr_cat")
}

func TestS1Water(t *testing.T) {
	t.Parallel()
	// 12 acquisitions; pixel 0 is wet in 9, pixel 1 in 8, pixel 2 in 9 of 10
	// valid ones (two zero fills), pixel 3 is never observed.
	var slices [][]float32
	var times []time.Time
	for i := 0; i < 12; i++ {
		v0, v1, v2 := float32(-10), float32(-10), float32(-10)
		if i < 9 {
			v0 = -25
		}
		if i < 8 {
			v1 = -23
		}
		if i < 9 {
			v2 = -30
		}
		if i >= 10 {
			v2 = 0
		}
		slices = append(slices, []float32{v0, v1, v2, 0})
		times = append(times, day(2020, time.Month(i+1), 1))
	}
	got := run(t, "s1_water", Options{}, series(t, S1Band, times, slices...))
	// 9/12*12 = 9 > 8; 8 is not > 8; 9/10*12 = 10.8
	assertData(t, []float32{1, nan, 1, nan}, got)
}

func TestS1Artiwoody_UsesConfig(t *testing.T) {
	t.Parallel()
	times := []time.Time{day(2020, 1, 1), day(2020, 2, 1), day(2020, 3, 1), day(2020, 4, 1)}
	// bright in 4, 3 and 1 of 4 acquisitions: 12, 9 and 3 months
	data := series(t, S1Band, times,
		[]float32{-10, -10, -10, 0},
		[]float32{-10, -10, -20, 0},
		[]float32{-10, -10, -20, 0},
		[]float32{-10, -20, -20, 0},
	)
	assertData(t, []float32{1, 1, nan, nan}, run(t, "s1_artiwoody", Options{}, data))

	cfg := config.Empty()
	months := 10.0
	cfg.ArtificialMonths = &months
	assertData(t, []float32{1, nan, nan, nan}, run(t, "s1_artiwoody", Options{Config: cfg}, data))
}

func TestWater(t *testing.T) {
	t.Parallel()
	got := run(t, "water", Options{}, collated(t,
		[]float32{1, nan, nan, 0},
		[]float32{nan, 1, nan, 0},
	))
	assertData(t, []float32{1, 1, nan, nan}, got)
}

func TestCategoryCombinations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   [][]float32
		want []float32
	}{
		{"water_cat", [][]float32{{1, 1, nan, nan}, {nan, 1, 1, nan}}, []float32{1, nan, nan, nan}},
		{"aquatic_wat_cat", [][]float32{{1, nan, nan, 1}, {nan, 1, nan, 1}}, []float32{1, 1, nan, 1}},
		{"vegetat_veg_cat", [][]float32{{1, 1, 1, nan}, {nan, 1, nan, nan}, {nan, nan, 1, nan}}, []float32{1, nan, nan, nan}},
		{"lifeform_veg_cat", [][]float32{{1, nan, nan, 1}, {1, 1, nan, nan}}, []float32{1, 2, 0, 1}},
		{"woody_s1_cat", [][]float32{{1, 1, nan, 1}, {1, nan, 1, 0}}, []float32{1, nan, nan, nan}},
		{"woody_cat", [][]float32{{1, nan, 1, nan}, {nan, 1, 1, nan}, {nan, nan, 1, 0}}, []float32{1, 1, nan, nan}},
		{"cultman_agr_cat", [][]float32{{2, 2, 1, 2}, {1, 1, 1, nan}, {nan, 1, nan, nan}}, []float32{1, nan, nan, nan}},
		{"s1_woody", [][]float32{{1, nan, nan, 0}, {nan, nan, 1, 0}}, []float32{1, nan, 1, nan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertData(t, tt.want, run(t, tt.name, Options{}, collated(t, tt.in...)))
		})
	}
}

func TestAquaticVegCat(t *testing.T) {
	t.Parallel()
	got := run(t, "aquatic_veg_cat", Options{}, collated(t,
		[]float32{2, 3, 3, 1},         // species5
		[]float32{nan, 1, nan, nan},   // peats
		[]float32{nan, nan, nan, 1},   // saltmarshes
		[]float32{1, 1, 1, 1},         // vegetat_veg_cat
		[]float32{nan, nan, nan, nan}, // woody_cat
		[]float32{nan, nan, nan, 1},   // cultman_agr_cat
	))
	// heather counts only on peat; the saltmarsh pixel is cultivated
	assertData(t, []float32{1, 1, nan, nan}, got)
}

func TestCollatedInputErrors(t *testing.T) {
	t.Parallel()
	tr, err := New("water_cat", Options{})
	require.NoError(t, err)
	_, err = tr.Compute(context.Background(), collated(t, []float32{1, 1, 1, 1}))
	assert.Error(t, err, "one input for two")

	ds := collated(t, []float32{1, 1, 1, 1}, []float32{1, 1, 1, 1})
	band, err := ds.Band("band")
	require.NoError(t, err)
	require.NoError(t, ds.SetBand("extra", band))
	_, err = tr.Compute(context.Background(), ds)
	assert.Error(t, err, "multi-band collation")
}

func TestAncillaryMasks(t *testing.T) {
	t.Parallel()
	zero := []time.Time{{}}
	nfi := series(t, NFIBand, zero, []float32{0, 1, 4, 5})
	assertData(t, []float32{nan, 1, 1, nan}, run(t, "woody_nfi", Options{}, nfi))

	peats := series(t, "peats", zero, []float32{0, 3, nan, 1})
	assertData(t, []float32{nan, 1, nan, 1}, run(t, "aquatic_peats", Options{}, peats))

	salt := series(t, "saltmarshes", zero, []float32{1, 0, 0, 0})
	assertData(t, []float32{1, nan, nan, nan}, run(t, "aquatic_saltmarshes", Options{}, salt))

	tr, _ := New("woody_nfi", Options{})
	_, err := tr.Compute(context.Background(), peats)
	assert.ErrorIs(t, err, cube.ErrMissingBand)
}

func s2(t *testing.T, times []time.Time, bands map[string][][]float32) *cube.Dataset {
	t.Helper()
	ds := cube.NewDataset(grid, times)
	for name, slices := range bands {
		s := cube.NewStack(grid)
		for i, sl := range slices {
			require.NoError(t, s.Append(times[i], sl))
		}
		require.NoError(t, ds.SetBand(name, s))
	}
	return ds
}

func TestS2VegAndClearCuts(t *testing.T) {
	t.Parallel()
	times := []time.Time{day(2020, 1, 15), day(2020, 5, 1), day(2020, 8, 1)}
	data := s2(t, times, map[string][][]float32{
		// NDVI in Jan is ignored; May/Aug: 0.75/0.25, 0.25/0.25, 0.5/0.625, nan
		"nir": {{9, 9, 9, 9}, {0.875, 0.625, 0.75, nan}, {0.625, 0.625, 0.8125, nan}},
		"red": {{1, 1, 1, 1}, {0.125, 0.375, 0.25, nan}, {0.375, 0.375, 0.1875, nan}},
	})
	assertData(t, []float32{1, nan, 1, nan}, run(t, "s2_veg", Options{}, data))
	// means: 0.5, 0.25, 0.5625
	assertData(t, []float32{1, 1, nan, nan}, run(t, "clear_cuts_s2", Options{}, data))
}

func TestS2Artif(t *testing.T) {
	t.Parallel()
	data := s2(t, []time.Time{day(2020, 6, 1)}, map[string][][]float32{
		"swir1": {{3, 1, 1, 0}},
		"nir":   {{1, 3, 1.5, 0}},
	})
	// NDBI: 0.5, -0.5, -0.2, nodata
	assertData(t, []float32{1, nan, nan, nan}, run(t, "s2_artif", Options{}, data))
}

func TestARDProducts(t *testing.T) {
	t.Parallel()
	data := series(t, S1Band, []time.Time{day(2020, 1, 1)}, []float32{0, -12, 0, -20})
	tr, err := New("s1_ard", Options{})
	require.NoError(t, err)
	out, err := tr.Compute(context.Background(), data)
	require.NoError(t, err)
	vh, err := out.Band(S1Band)
	require.NoError(t, err)
	assertData(t, []float32{nan, -12, nan, -20}, vh.Slices[0])
	assert.Contains(t, tr.Measurements(nil), "s1_ard")
}

func TestRelabel(t *testing.T) {
	t.Parallel()
	data := series(t, "band", []time.Time{{}}, []float32{1, nan, 1, nan})
	tr, err := New("le_artific_urb_cat", Options{})
	require.NoError(t, err)
	out, err := tr.Compute(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{"artific_urb_cat"}, out.Bands())
	l, err := out.Layer("artific_urb_cat")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 1, 0}, l.Data)
	assert.Equal(t, []string{"band"}, data.Bands(), "input keeps its name")
}

func osmSource(t *testing.T, g cube.Grid, roads, buildings []float32) *cube.MemorySource {
	t.Helper()
	ts := []time.Time{day(2019, 3, 25)}
	ds := cube.NewDataset(g, ts)
	for name, data := range map[string][]float32{"roads": roads, "buildings": buildings} {
		s := cube.NewStack(g)
		require.NoError(t, s.Append(ts[0], data))
		require.NoError(t, ds.SetBand(name, s))
	}
	src := cube.NewMemorySource()
	src.Put(OSMProduct, ds)
	return src
}

func TestArtificUrbCat(t *testing.T) {
	t.Parallel()
	in := collated(t,
		[]float32{1, 1, nan, nan},
		[]float32{1, nan, nan, nan},
		[]float32{1, 1, nan, nan},
	)
	assertData(t, []float32{1, nan, nan, nan}, run(t, "artific_urb_cat", Options{}, in))

	src := osmSource(t, grid, []float32{0, 5111, 4000, 0}, []float32{0, 0, 0, 7})
	assertData(t, []float32{1, 1, nan, 1}, run(t, "artific_urb_cat", Options{Source: src}, in))

	// a source without the OSM product leaves the Sentinel result
	assertData(t, []float32{1, nan, nan, nan}, run(t, "artific_urb_cat", Options{Source: cube.NewMemorySource()}, in))
}

const cultivatedModel = `{
  "kind": "random_forest",
  "n_features": 6,
  "classes": [1, 2],
  "trees": [{
    "children_left":  [1, -1, -1],
    "children_right": [2, -1, -1],
    "feature":        [0, -2, -2],
    "threshold":      [0.5, -2, -2],
    "value":          [[1, 1], [1, 0], [0, 1]]
  }]
}`

func TestSklearnCultivated(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cultivated.json"), []byte(cultivatedModel), 0o644))
	cfg := config.Empty()
	cfg.ModelDir = &dir

	times := []time.Time{day(2020, 2, 10), day(2020, 3, 10)}
	archive := s2(t, times, map[string][][]float32{
		"blue":  {{500, 500, 500, 500}, {500, 500, 500, 500}},
		"green": {{1000, 1000, 1000, 1000}, {1000, 1000, 1000, 1000}},
		"red":   {{1000, 1000, 3000, 1000}, {1000, 1000, 3000, 1000}},
		"veg5":  {{2000, 2000, 2000, 2000}, {2000, 2000, 2000, 2000}},
		"veg6":  {{2500, 2500, 2500, 2500}, {2500, 2500, 2500, 2500}},
		"veg7":  {{3000, 3000, 3000, 3000}, {3000, 3000, 3000, 3000}},
		"nir":   {{5000, 1000, 4000, 5000}, {5000, 1000, 4000, 5000}},
		"scl":   {{4, 4, 4, 9}, {4, 4, 4, 9}},
	})
	src := cube.NewMemorySource()
	src.Put("sen2_l2a_gcp", archive)

	// the input only provides the grid and the year
	input := series(t, "red", []time.Time{day(2020, 6, 1)}, []float32{0, 0, 0, 0})
	got := run(t, "sklearn_cultivated_classification", Options{Config: cfg, Source: src, Model: "cultivated.json"}, input)
	// NDVI max: 0.667, 0, 0.143, cloud -> 0
	assert.Equal(t, []float32{2, 1, 1, 1}, got)

	_, err := New("sklearn_cultivated_classification", Options{Config: cfg, Model: "cultivated.json"})
	assert.Error(t, err, "no source")
	_, err = New("sklearn_species5_classification", Options{Config: cfg, Source: src, Model: "cultivated.json"})
	assert.Error(t, err, "feature count mismatch")
	_, err = New("sklearn_cultivated_classification", Options{Config: cfg, Source: src, Model: "../cultivated.json"})
	assert.Error(t, err, "outside the model dir")
}
