// Package stats provides nodata-aware descriptive statistics and the
// Mann-Kendall monotonic trend test used by the crop seasonality rules.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DropNaN returns the non-NaN values of x in order.
func DropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean returns the mean of the valid values, or NaN.
func Mean(x []float64) float64 {
	v := DropNaN(x)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// Sum returns the sum of the valid values.
func Sum(x []float64) float64 {
	return floats.Sum(DropNaN(x))
}

// Min returns the smallest valid value, or NaN.
func Min(x []float64) float64 {
	v := DropNaN(x)
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Min(v)
}

// Max returns the largest valid value, or NaN.
func Max(x []float64) float64 {
	v := DropNaN(x)
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Max(v)
}

// Median returns the median of the valid values, averaging the middle pair
// for even counts, or NaN.
func Median(x []float64) float64 {
	v := DropNaN(x)
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}

// Std returns the population standard deviation of the valid values, or NaN.
func Std(x []float64) float64 {
	v := DropNaN(x)
	if len(v) == 0 {
		return math.NaN()
	}
	if len(v) == 1 {
		return 0
	}
	// MeanVariance is unbiased; rescale to the population variance.
	_, variance := stat.MeanVariance(v, nil)
	n := float64(len(v))
	return math.Sqrt(variance * (n - 1) / n)
}
