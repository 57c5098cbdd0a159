// Package forest maps woodland from a yearly count of high-backscatter
// months and tracks clearfelling between years.
package forest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
	"github.com/livingwales/vproducts/internal/morph"
	"github.com/livingwales/vproducts/internal/sites"
	"github.com/livingwales/vproducts/internal/units"
)

// Query loads VH over a forest site between two YYYY-MM-DD dates.
func Query(site sites.Site, from, to string) (cube.Query, error) {
	return site.Query(from, to, sites.S1Product, "VH")
}

// Monthly is the mean backscatter of each observed month of one year.
// Slice times are the first day of the month.
type Monthly struct {
	Year  int
	Stack *cube.Stack
}

// GroupByMonth averages vh per calendar month, one Monthly per year.
// Months without acquisitions are left out.
func GroupByMonth(ctx context.Context, vh *cube.Stack) ([]Monthly, error) {
	var out []Monthly
	for _, y := range vh.Years() {
		year := vh.Year(y)
		m := Monthly{Year: y, Stack: cube.NewStack(vh.Grid)}
		for month := time.January; month <= time.December; month++ {
			sub := year.Months(month, month)
			if sub.Len() == 0 {
				continue
			}
			mean, err := sub.Mean(ctx)
			if err != nil {
				return nil, err
			}
			if err := m.Stack.AppendLayer(time.Date(y, month, 1, 0, 0, 0, 0, time.UTC), mean); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	monitoring.Logf("[forest] grouped %d acquisitions into %d years", vh.Len(), len(out))
	return out, nil
}

// Map flags, per year, the pixels whose monthly VH exceeds the forest
// threshold in more than the configured number of months. The result has one
// slice per year dated 1 January; non-forest pixels are nodata.
func Map(ctx context.Context, monthly []Monthly, cfg *config.Config) (*cube.Stack, error) {
	if len(monthly) == 0 {
		return nil, fmt.Errorf("forest map: %w", cube.ErrNoData)
	}
	if cfg == nil {
		cfg = config.Empty()
	}
	th, months := float32(cfg.GetForestVHDB()), float32(cfg.GetForestMonths())
	out := cube.NewStack(monthly[0].Stack.Grid)
	for _, m := range monthly {
		n, err := m.Stack.CountWhere(ctx, func(v float32) bool { return v > th })
		if err != nil {
			return nil, err
		}
		woody := n.Map(func(v float32) float32 {
			if v > months {
				return 1
			}
			return cube.NaN
		})
		if err := out.AppendLayer(time.Date(m.Year, time.January, 1, 0, 0, 0, 0, time.UTC), woody); err != nil {
			return nil, fmt.Errorf("forest map %d: %w", m.Year, err)
		}
	}
	return out, nil
}

// Clearfells marks forest lost since the previous year, cleaned with a 3x3
// binary opening. Slices carry the later year; clearfelled pixels are 1, the
// rest nodata.
func Clearfells(woody *cube.Stack) (*cube.Stack, error) {
	if woody.Len() < 2 {
		return nil, fmt.Errorf("clearfell detection needs at least two years, got %d", woody.Len())
	}
	w, h := woody.Width(), woody.Height()
	out := cube.NewStack(woody.Grid)
	for i := 1; i < woody.Len(); i++ {
		prev, cur := woody.Slices[i-1], woody.Slices[i]
		lost := make([]bool, len(cur))
		for j := range cur {
			lost[j] = fill0(cur[j])-fill0(prev[j]) < 0
		}
		clean, err := morph.BinaryOpening(lost, w, h, morph.Square(3))
		if err != nil {
			return nil, err
		}
		d := make([]float32, len(clean))
		for j, v := range clean {
			d[j] = cube.NaN
			if v {
				d[j] = 1
			}
		}
		if err := out.Append(woody.Times[i], d); err != nil {
			return nil, err
		}
		monitoring.Logf("[forest] clearfells in %d", woody.Times[i].Year())
	}
	return out, nil
}

// ClearfellDates labels each pixel with the first year it was clearfelled.
func ClearfellDates(clearfells *cube.Stack) *cube.Layer {
	out := cube.Full(clearfells.Grid, cube.NaN)
	for i, sl := range clearfells.Slices {
		year := float32(clearfells.Times[i].Year())
		for j, v := range sl {
			if v == 1 && cube.IsNaN(out.Data[j]) {
				out.Data[j] = year
			}
		}
	}
	return out
}

// YearArea is the clearfelled area of one year.
type YearArea struct {
	Year     int
	Hectares float64
}

// Areas sums the clearfell date map per year, in hectares rounded down.
func Areas(dates *cube.Layer, pixelSizeM float64) []YearArea {
	var out []YearArea
	for v, n := range dates.Unique() {
		if v <= 1900 {
			continue
		}
		out = append(out, YearArea{Year: int(v), Hectares: math.Floor(units.PixelsToHectares(n, pixelSizeM))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Report summarises clearfelling at a site, one line per year.
func Report(site string, areas []YearArea) string {
	var b strings.Builder
	fmt.Fprintf(&b, "For the %s forest site, we report :\n", strings.ToUpper(site))
	for _, a := range areas {
		fmt.Fprintf(&b, "%d hectares of clearfelling during %d\n", int(a.Hectares), a.Year)
	}
	return b.String()
}

func fill0(v float32) float32 {
	if cube.IsNaN(v) {
		return 0
	}
	return v
}
