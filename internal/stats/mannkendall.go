package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Trend is the direction reported by a Mann-Kendall test.
type Trend string

const (
	Increasing Trend = "increasing"
	Decreasing Trend = "decreasing"
	NoTrend    Trend = "no trend"
)

// MKResult is the outcome of the original Mann-Kendall test.
type MKResult struct {
	Trend     Trend
	H         bool    // trend significant at Alpha
	P         float64 // two-sided p-value
	Z         float64
	Tau       float64
	S         float64
	VarS      float64
	Slope     float64 // Sen's slope per observation step
	Intercept float64
	N         int  // valid observations used
	Valid     bool // at least two valid observations
}

func (r MKResult) String() string {
	return fmt.Sprintf("trend=%s h=%t p=%.4g z=%.4g tau=%.4g s=%g var_s=%.4g slope=%.4g intercept=%.4g n=%d",
		r.Trend, r.H, r.P, r.Z, r.Tau, r.S, r.VarS, r.Slope, r.Intercept, r.N)
}

// Rising reports a significant positive slope at threshold p.
func (r MKResult) Rising(p float64) bool { return r.Valid && r.P < p && r.Slope > 0 }

// Falling reports a significant negative slope at threshold p.
func (r MKResult) Falling(p float64) bool { return r.Valid && r.P < p && r.Slope < 0 }

// DefaultAlpha is the significance level used for H and Trend.
const DefaultAlpha = 0.05

// MannKendall runs the original (non-seasonal, no autocorrelation correction)
// Mann-Kendall test on x after dropping NaN values. Fewer than two valid
// values give an invalid result with P = 1 and a NaN slope.
func MannKendall(x []float64, alpha float64) MKResult {
	v := DropNaN(x)
	n := len(v)
	res := MKResult{Trend: NoTrend, P: 1, Slope: math.NaN(), Intercept: math.NaN(), N: n}
	if n < 2 {
		return res
	}
	res.Valid = true

	var s float64
	for k := 0; k < n-1; k++ {
		for j := k + 1; j < n; j++ {
			s += sign(v[j] - v[k])
		}
	}
	res.S = s

	// tie correction
	counts := make(map[float64]int)
	for _, val := range v {
		counts[val]++
	}
	nf := float64(n)
	varS := nf * (nf - 1) * (2*nf + 5)
	if len(counts) != n {
		for _, tp := range counts {
			t := float64(tp)
			varS -= t * (t - 1) * (2*t + 5)
		}
	}
	varS /= 18
	res.VarS = varS

	switch {
	case varS <= 0:
		res.Z = 0
	case s > 0:
		res.Z = (s - 1) / math.Sqrt(varS)
	case s < 0:
		res.Z = (s + 1) / math.Sqrt(varS)
	}

	norm := distuv.UnitNormal
	res.P = 2 * (1 - norm.CDF(math.Abs(res.Z)))
	res.H = math.Abs(res.Z) > norm.Quantile(1-alpha/2)
	switch {
	case res.Z < 0 && res.H:
		res.Trend = Decreasing
	case res.Z > 0 && res.H:
		res.Trend = Increasing
	}
	res.Tau = s / (0.5 * nf * (nf - 1))

	res.Slope = SensSlope(v)
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	res.Intercept = Median(v) - Median(idx)*res.Slope
	return res
}

// SensSlope returns the median of pairwise slopes (x[j]-x[i])/(j-i), or NaN
// for fewer than two values.
func SensSlope(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return math.NaN()
	}
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			slopes = append(slopes, (x[j]-x[i])/float64(j-i))
		}
	}
	return Median(slopes)
}

func sign(d float64) float64 {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}
