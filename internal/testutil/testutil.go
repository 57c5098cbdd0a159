// Package testutil provides shared test helpers and cube fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/livingwales/vproducts/internal/cube"
)

// BNG is the CRS of the fixtures.
const BNG = "EPSG:27700"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Get serves a GET of target on h.
func Get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// Grid returns a w x h grid of 10 m pixels whose top-left corner is at
// (minX, maxY).
func Grid(minX, maxY float64, w, h int) cube.Grid {
	return cube.NewGrid(minX, maxY, 10, w, h, BNG)
}

// Monthly returns n acquisition times on the 5th of each month from
// January of year, at 11:00 UTC like a morning Sentinel pass.
func Monthly(year, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(year, time.January, 5, 11, 0, 0, 0, time.UTC).AddDate(0, i, 0)
	}
	return out
}

// StackOf builds a stack on g with one slice per time, filled by
// fn(slice, pixel).
func StackOf(t testing.TB, g cube.Grid, times []time.Time, fn func(slice, pixel int) float32) *cube.Stack {
	t.Helper()
	s := cube.NewStack(g)
	for i, ts := range times {
		data := make([]float32, g.Len())
		for p := range data {
			data[p] = fn(i, p)
		}
		if err := s.Append(ts, data); err != nil {
			t.Fatalf("failed to build stack: %v", err)
		}
	}
	return s
}

// DatasetOf assembles stacks sharing a grid and times into a dataset.
// Bands are given as name, stack pairs.
func DatasetOf(t testing.TB, bands ...interface{}) *cube.Dataset {
	t.Helper()
	if len(bands) == 0 || len(bands)%2 != 0 {
		t.Fatalf("DatasetOf needs name, stack pairs")
	}
	first, ok := bands[1].(*cube.Stack)
	if !ok {
		t.Fatalf("DatasetOf: %T is not a stack", bands[1])
	}
	ds := cube.NewDataset(first.Grid, first.Times)
	for i := 0; i < len(bands); i += 2 {
		name, _ := bands[i].(string)
		s, ok := bands[i+1].(*cube.Stack)
		if name == "" || !ok {
			t.Fatalf("DatasetOf: bad pair %v, %T", bands[i], bands[i+1])
		}
		if err := ds.SetBand(name, s); err != nil {
			t.Fatalf("failed to set band %s: %v", name, err)
		}
	}
	return ds
}

// Constant returns a pixel function that ignores its arguments.
func Constant(v float32) func(int, int) float32 {
	return func(int, int) float32 { return v }
}
