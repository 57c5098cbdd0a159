package cube

import (
	"math"
	"sort"
	"time"
)

// Series is a one-dimensional time series, such as a parcel median.
// NaN marks missing observations.
type Series struct {
	Times  []time.Time `json:"times"`
	Values []float64   `json:"values"`
}

func (s Series) Len() int { return len(s.Values) }

// Range keeps the observations inside r.
func (s Series) Range(r DateRange) Series {
	var out Series
	for i, t := range s.Times {
		if r.Contains(t) {
			out.Times = append(out.Times, t)
			out.Values = append(out.Values, s.Values[i])
		}
	}
	return out
}

// Valid drops missing observations.
func (s Series) Valid() Series {
	var out Series
	for i, v := range s.Values {
		if !math.IsNaN(v) {
			out.Times = append(out.Times, s.Times[i])
			out.Values = append(out.Values, v)
		}
	}
	return out
}

// ArgMin returns the index of the smallest valid value, or -1.
func (s Series) ArgMin() int {
	idx := -1
	for i, v := range s.Values {
		if !math.IsNaN(v) && (idx < 0 || v < s.Values[idx]) {
			idx = i
		}
	}
	return idx
}

// ArgMax returns the index of the largest valid value, or -1.
func (s Series) ArgMax() int {
	idx := -1
	for i, v := range s.Values {
		if !math.IsNaN(v) && (idx < 0 || v > s.Values[idx]) {
			idx = i
		}
	}
	return idx
}

// Min returns the smallest valid value, or NaN.
func (s Series) Min() float64 {
	if i := s.ArgMin(); i >= 0 {
		return s.Values[i]
	}
	return math.NaN()
}

// Max returns the largest valid value, or NaN.
func (s Series) Max() float64 {
	if i := s.ArgMax(); i >= 0 {
		return s.Values[i]
	}
	return math.NaN()
}

// Median returns the median of the valid values, or NaN.
func (s Series) Median() float64 {
	v := s.Valid().Values
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

// Sub returns s - o for series observed at the same times.
func (s Series) Sub(o Series) Series {
	out := Series{Times: append([]time.Time(nil), s.Times...), Values: make([]float64, len(s.Values))}
	for i := range s.Values {
		if i < len(o.Values) {
			out.Values[i] = s.Values[i] - o.Values[i]
		} else {
			out.Values[i] = math.NaN()
		}
	}
	return out
}
