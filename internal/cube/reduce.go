package cube

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Reducer collapses one pixel's values over time into a single value.
// vals may contain nodata.
type Reducer func(vals []float32) float32

// Reduce collapses the time axis with fn.
func (s *Stack) Reduce(ctx context.Context, fn Reducer) (*Layer, error) {
	return s.reduce(ctx, fn)
}

// Sum is the nodata-skipping sum; a pixel with no valid values sums to 0.
func (s *Stack) Sum(ctx context.Context) (*Layer, error) { return s.reduce(ctx, NanSum) }

// Mean is the nodata-skipping mean; a pixel with no valid values is nodata.
func (s *Stack) Mean(ctx context.Context) (*Layer, error) { return s.reduce(ctx, NanMean) }

// Max is the nodata-skipping maximum.
func (s *Stack) Max(ctx context.Context) (*Layer, error) { return s.reduce(ctx, NanMax) }

// Min is the nodata-skipping minimum.
func (s *Stack) Min(ctx context.Context) (*Layer, error) { return s.reduce(ctx, NanMin) }

// Median is the nodata-skipping median; even counts average the middle pair.
func (s *Stack) Median(ctx context.Context) (*Layer, error) { return s.reduce(ctx, NanMedian) }

// Count returns the number of valid values per pixel.
func (s *Stack) Count(ctx context.Context) (*Layer, error) { return s.reduce(ctx, NanCount) }

// CountWhere returns, per pixel, how many valid values satisfy pred.
func (s *Stack) CountWhere(ctx context.Context, pred func(float32) bool) (*Layer, error) {
	return s.reduce(ctx, func(vals []float32) float32 {
		n := 0
		for _, v := range vals {
			if !IsNaN(v) && pred(v) {
				n++
			}
		}
		return float32(n)
	})
}

func NanSum(vals []float32) float32 {
	var s float64
	for _, v := range vals {
		if !IsNaN(v) {
			s += float64(v)
		}
	}
	return float32(s)
}

func NanMean(vals []float32) float32 {
	var s float64
	n := 0
	for _, v := range vals {
		if !IsNaN(v) {
			s += float64(v)
			n++
		}
	}
	if n == 0 {
		return NaN
	}
	return float32(s / float64(n))
}

func NanMax(vals []float32) float32 {
	out := NaN
	for _, v := range vals {
		if !IsNaN(v) && (IsNaN(out) || v > out) {
			out = v
		}
	}
	return out
}

func NanMin(vals []float32) float32 {
	out := NaN
	for _, v := range vals {
		if !IsNaN(v) && (IsNaN(out) || v < out) {
			out = v
		}
	}
	return out
}

func NanMedian(vals []float32) float32 {
	valid := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !IsNaN(v) {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) == 0 {
		return NaN
	}
	sort.Float64s(valid)
	mid := len(valid) / 2
	if len(valid)%2 == 1 {
		return float32(valid[mid])
	}
	return float32((valid[mid-1] + valid[mid]) / 2)
}

func NanCount(vals []float32) float32 {
	n := 0
	for _, v := range vals {
		if !IsNaN(v) {
			n++
		}
	}
	return float32(n)
}

// ReducerByName resolves a statistic name. A leading "nan" is accepted and
// ignored since every reducer skips nodata.
func ReducerByName(name string) (Reducer, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "nan") {
	case "sum":
		return NanSum, nil
	case "mean":
		return NanMean, nil
	case "max":
		return NanMax, nil
	case "min":
		return NanMin, nil
	case "median":
		return NanMedian, nil
	case "count":
		return NanCount, nil
	}
	return nil, fmt.Errorf("unknown statistic %q: must be one of sum, mean, max, min, median, count", name)
}
