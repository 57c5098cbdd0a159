package cube

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = NaN

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func grid2x2() Grid { return NewGrid(0, 20, 10, 2, 2, "EPSG:27700") }

func floatsEqual() cmp.Option { return cmpopts.EquateNaNs() }

func TestNewGrid_PixelCentres(t *testing.T) {
	t.Parallel()
	g := NewGrid(100, 200, 10, 3, 2, "EPSG:27700")
	assert.Equal(t, []float64{105, 115, 125}, g.X)
	assert.Equal(t, []float64{195, 185}, g.Y)
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, 10.0, g.Resolution())
}

func TestGrid_Clip(t *testing.T) {
	t.Parallel()
	g := NewGrid(0, 30, 10, 3, 3, "EPSG:27700")
	clipped, cols, rows, err := g.Clip(Extent{MinX: 5, MinY: 5, MaxX: 15, MaxY: 15, CRS: "EPSG:27700"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, cols)
	assert.Equal(t, []int{1, 2}, rows)
	assert.Equal(t, []float64{5, 15}, clipped.X)
	assert.Equal(t, []float64{15, 5}, clipped.Y)

	_, _, _, err = g.Clip(Extent{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1, CRS: "EPSG:4326"})
	assert.Error(t, err)
}

func TestGrid_Equal(t *testing.T) {
	t.Parallel()
	a := grid2x2()
	b := grid2x2()
	b.CRS = ""
	assert.True(t, a.Equal(b))
	c := NewGrid(0, 20, 10, 3, 2, "EPSG:27700")
	assert.False(t, a.Equal(c))
	d := grid2x2()
	d.CRS = "EPSG:4326"
	assert.False(t, a.Equal(d))
}

func TestLayer_Binarize(t *testing.T) {
	t.Parallel()
	l := &Layer{Grid: grid2x2(), Data: []float32{3, 0, -1, nan}}
	got := l.Binarize()
	if diff := cmp.Diff([]float32{1, nan, nan, nan}, got.Data, floatsEqual()); diff != "" {
		t.Errorf("Binarize mismatch (-want +got):\n%s", diff)
	}
}

func TestLayer_ArithmeticPropagatesNaN(t *testing.T) {
	t.Parallel()
	g := grid2x2()
	a := &Layer{Grid: g, Data: []float32{1, 2, nan, 4}}
	b := &Layer{Grid: g, Data: []float32{1, nan, 3, 1}}

	sum, err := Add(a, b)
	require.NoError(t, err)
	if diff := cmp.Diff([]float32{2, nan, nan, 5}, sum.Data, floatsEqual()); diff != "" {
		t.Errorf("Add mismatch (-want +got):\n%s", diff)
	}

	diff, err := Sub(a.FillNaN(0), b.FillNaN(0))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, -3, 3}, diff.Data)

	_, err = Add(a, &Layer{Grid: NewGrid(0, 0, 10, 1, 1, ""), Data: []float32{1}})
	assert.ErrorIs(t, err, ErrGridMismatch)
}

func TestLayer_WhereAndCount(t *testing.T) {
	t.Parallel()
	l := &Layer{Grid: grid2x2(), Data: []float32{-25, -10, nan, -30}}
	wet := l.Where(func(v float32) bool { return v < -22 })
	assert.Equal(t, 2, wet.Count())
	assert.Equal(t, -55.0, wet.Sum())
	assert.Equal(t, map[float32]int{-25: 1, -30: 1}, wet.Unique())
}

func testStack(t *testing.T, slices ...[]float32) *Stack {
	t.Helper()
	s := NewStack(grid2x2())
	for i, sl := range slices {
		require.NoError(t, s.Append(day(2020, time.Month(i+1), 1), sl))
	}
	return s
}

func TestStack_Reductions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testStack(t,
		[]float32{1, nan, 3, nan},
		[]float32{2, nan, 1, nan},
		[]float32{6, 5, 2, nan},
		[]float32{3, nan, 4, nan},
	)

	tests := []struct {
		name string
		fn   func(context.Context) (*Layer, error)
		want []float32
	}{
		{"sum", s.Sum, []float32{12, 5, 10, 0}},
		{"mean", s.Mean, []float32{3, 5, 2.5, nan}},
		{"max", s.Max, []float32{6, 5, 4, nan}},
		{"min", s.Min, []float32{1, 5, 1, nan}},
		{"median", s.Median, []float32{2.5, 5, 2.5, nan}},
		{"count", s.Count, []float32{4, 1, 4, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got.Data, floatsEqual()); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.name, diff)
			}
		})
	}

	above, err := s.CountWhere(ctx, func(v float32) bool { return v > 2 })
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1, 2, 0}, above.Data)
}

func TestStack_EmptyReductions(t *testing.T) {
	t.Parallel()
	s := NewStack(grid2x2())
	sum, err := s.Sum(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, sum.Data)
	mean, err := s.Mean(context.Background())
	require.NoError(t, err)
	assert.True(t, IsNaN(mean.Data[0]))
}

func TestStack_ReduceCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testStack(t, []float32{1, 2, 3, 4}).Sum(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStack_MonthsAndRange(t *testing.T) {
	t.Parallel()
	s := NewStack(grid2x2())
	for m := time.January; m <= time.December; m++ {
		require.NoError(t, s.Append(day(2020, m, 15), []float32{float32(m), 0, 0, 0}))
	}
	assert.Equal(t, 7, s.Months(time.April, time.October).Len())
	assert.Equal(t, 2, s.Range(Days(2020, time.February, 1, 2020, time.March, 31)).Len())
	assert.Equal(t, 12, s.Year(2020).Len())
	assert.Equal(t, []int{2020}, s.Years())
}

func TestProgression(t *testing.T) {
	t.Parallel()
	s := testStack(t,
		[]float32{1, nan, 1, nan},
		[]float32{1, 1, nan, nan},
		[]float32{nan, 1, 1, nan},
	)
	p, err := Progression(s)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, s.Times[1:], p.Times)
	if diff := cmp.Diff([]float32{1, 2, -1, nan}, p.Slices[0], floatsEqual()); diff != "" {
		t.Errorf("first step (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{-1, 1, 2, nan}, p.Slices[1], floatsEqual()); diff != "" {
		t.Errorf("second step (-want +got):\n%s", diff)
	}

	_, err = Progression(testStack(t, []float32{1, 1, 1, 1}))
	assert.Error(t, err)
}

func TestReduceByDay(t *testing.T) {
	t.Parallel()
	s := NewStack(grid2x2())
	require.NoError(t, s.Append(time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC), []float32{1, nan, 4, nan}))
	require.NoError(t, s.Append(time.Date(2020, 1, 1, 18, 0, 0, 0, time.UTC), []float32{3, 2, nan, nan}))
	require.NoError(t, s.Append(time.Date(2020, 1, 2, 6, 0, 0, 0, time.UTC), []float32{5, 5, 5, 5}))

	out, err := ReduceByDay(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), out.Times[0])
	if diff := cmp.Diff([]float32{2, 2, 4, nan}, out.Slices[0], floatsEqual()); diff != "" {
		t.Errorf("merged day (-want +got):\n%s", diff)
	}
}

func TestCleanAcquisitions(t *testing.T) {
	t.Parallel()
	mask := testStack(t,
		[]float32{1, 1, 1, 0},
		[]float32{1, 0, 0, 0},
		[]float32{1, 1, 1, 1},
	)
	assert.Equal(t, []int{0, 2}, CleanAcquisitions(mask, 0.75))
}

func TestDataset_BandsIselRename(t *testing.T) {
	t.Parallel()
	s := testStack(t, []float32{1, 2, 3, 4}, []float32{5, 6, 7, 8})
	ds := NewDataset(s.Grid, s.Times)
	require.NoError(t, ds.SetBand("VH", s))
	require.NoError(t, ds.SetBand("VV", s.Map(func(v float32) float32 { return -v })))
	assert.Equal(t, []string{"VH", "VV"}, ds.Bands())

	_, err := ds.Band("NDVI")
	assert.True(t, errors.Is(err, ErrMissingBand))

	one, err := ds.Isel(1)
	require.NoError(t, err)
	l, err := one.Layer("VV")
	require.NoError(t, err)
	assert.Equal(t, []float32{-5, -6, -7, -8}, l.Data)

	_, err = ds.Isel(2)
	assert.Error(t, err)

	require.NoError(t, ds.Rename("VH", "band"))
	assert.Equal(t, []string{"band", "VV"}, ds.Bands())
	assert.Error(t, ds.Rename("VV", "band"))

	dropped := ds.DropBand("VV")
	assert.Equal(t, []string{"band"}, dropped.Bands())
	assert.Equal(t, []string{"band", "VV"}, ds.Bands())

	_, err = ds.Layer("VV")
	assert.Error(t, err, "two time slices cannot be squeezed")
}

func TestDataset_SetBandRejectsMismatch(t *testing.T) {
	t.Parallel()
	s := testStack(t, []float32{1, 2, 3, 4})
	ds := NewDataset(s.Grid, []time.Time{s.Times[0], s.Times[0]})
	assert.Error(t, ds.SetBand("x", s))

	other := NewStack(NewGrid(0, 0, 10, 1, 1, ""))
	require.NoError(t, other.Append(s.Times[0], []float32{1}))
	ds2 := NewDataset(s.Grid, s.Times)
	assert.ErrorIs(t, ds2.SetBand("x", other), ErrGridMismatch)
}

func TestConcatTime(t *testing.T) {
	t.Parallel()
	a := FromLayer("water", &Layer{Grid: grid2x2(), Data: []float32{1, nan, 1, nan}})
	b := FromLayer("water", &Layer{Grid: grid2x2(), Data: []float32{nan, 1, nan, 1}})
	joined, err := ConcatTime(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.Len())
	second, err := joined.Isel(1)
	require.NoError(t, err)
	l, err := second.OnlyLayer()
	require.NoError(t, err)
	if diff := cmp.Diff([]float32{nan, 1, nan, 1}, l.Data, floatsEqual()); diff != "" {
		t.Errorf("second slice (-want +got):\n%s", diff)
	}

	c := FromLayer("art", &Layer{Grid: grid2x2(), Data: []float32{1, 1, 1, 1}})
	_, err = ConcatTime(a, c)
	assert.Error(t, err)
}

func TestDateRange(t *testing.T) {
	t.Parallel()
	r, err := ParseDateRange("2020-02-01", "2020-08-31")
	require.NoError(t, err)
	assert.True(t, r.Contains(time.Date(2020, 8, 31, 23, 59, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2020, 1, 31, 23, 59, 0, 0, time.UTC)))

	_, err = ParseDateRange("2020-03-01", "2020-02-01")
	assert.Error(t, err)
	_, err = ParseDateRange("2020/03/01", "2020-04-01")
	assert.Error(t, err)

	assert.Equal(t, 29, LastDayOfMonth(2020, time.February))
	assert.Equal(t, 28, LastDayOfMonth(2021, time.February))
	feb := Months(2021, time.February, time.February)
	assert.Equal(t, "2021-02-01..2021-02-28", feb.String())
	assert.True(t, DateRange{}.Contains(time.Now()))
}

func TestSeries(t *testing.T) {
	t.Parallel()
	s := Series{
		Times:  []time.Time{day(2020, 1, 1), day(2020, 2, 1), day(2020, 3, 1), day(2020, 4, 1)},
		Values: []float64{-12, math.NaN(), -20, -8},
	}
	assert.Equal(t, 2, s.ArgMin())
	assert.Equal(t, 3, s.ArgMax())
	assert.Equal(t, -20.0, s.Min())
	assert.Equal(t, -8.0, s.Max())
	assert.Equal(t, -12.0, s.Median())
	assert.Equal(t, 3, s.Valid().Len())
	assert.Equal(t, 2, s.Range(Days(2020, 2, 1, 2020, 3, 31)).Len())
	assert.True(t, math.IsNaN(Series{}.Max()))
}

func TestReducerByName(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"mean", "nanmean", "max", "nanmax", "min", "median", "nanmedian", "sum", "count"} {
		_, err := ReducerByName(name)
		assert.NoError(t, err, name)
	}
	_, err := ReducerByName("mode")
	assert.Error(t, err)
}

func TestMemorySource_Select(t *testing.T) {
	t.Parallel()
	g := NewGrid(0, 30, 10, 3, 3, "EPSG:27700")
	s := NewStack(g)
	for m := time.January; m <= time.March; m++ {
		data := make([]float32, 9)
		for i := range data {
			data[i] = float32(int(m)*10 + i)
		}
		require.NoError(t, s.Append(day(2020, m, 1), data))
	}
	ds := NewDataset(g, s.Times)
	require.NoError(t, ds.SetBand("VH", s))
	require.NoError(t, ds.SetBand("VV", s))

	src := NewMemorySource()
	src.Put("sen1", ds)

	out, err := src.Load(context.Background(), Query{
		Product:      "sen1",
		Measurements: []string{"VV"},
		Time:         Days(2020, 2, 1, 2020, 3, 31),
		Extent:       &Extent{MinX: 10, MinY: 0, MaxX: 30, MaxY: 20, CRS: "EPSG:27700"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"VV"}, out.Bands())
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 2, out.Width())
	assert.Equal(t, 2, out.Height())
	vv, err := out.Band("VV")
	require.NoError(t, err)
	// rows 1..2, cols 1..2 of February
	assert.Equal(t, []float32{24, 25, 27, 28}, vv.Slices[0])

	_, err = src.Load(context.Background(), Query{Product: "sen2"})
	assert.ErrorIs(t, err, ErrNoData)
	_, err = src.Load(context.Background(), Query{Product: "sen1", Time: Days(2021, 1, 1, 2021, 1, 31)})
	assert.ErrorIs(t, err, ErrNoData)
	_, err = src.Load(context.Background(), Query{Product: "sen1", Measurements: []string{"HH"}})
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestMeasurementJSON(t *testing.T) {
	t.Parallel()
	b, err := Binary("water").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"water","dtype":"float32","nodata":"nan","units":"1"}`, string(b))
}
