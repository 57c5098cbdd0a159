// Package fire maps burnt ground from the Sentinel-2 normalised burn ratio
// and reports the habitats affected.
package fire

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/habitat"
	"github.com/livingwales/vproducts/internal/indices"
	"github.com/livingwales/vproducts/internal/monitoring"
	"github.com/livingwales/vproducts/internal/units"
)

// BurnMap flags pixels whose NBR lies strictly between the configured
// bounds. Burnt pixels are 1, the rest nodata. normalise scales raw
// reflectances first.
func BurnMap(ds *cube.Dataset, cfg *config.Config, normalise bool) (*cube.Stack, error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	nbr, err := indices.Calculate(ds, "NBR", normalise)
	if err != nil {
		return nil, err
	}
	lo, hi := float32(cfg.GetBurnNBRMin()), float32(cfg.GetBurnNBRMax())
	return nbr.Map(func(v float32) float32 {
		if v > lo && v < hi {
			return 1
		}
		return cube.NaN
	}), nil
}

// Progression compares consecutive burn maps: 2 newly burnt, 1 still burnt,
// -1 recovered.
func Progression(burn *cube.Stack) (*cube.Stack, error) {
	return cube.Progression(burn)
}

// BurntArea returns the burnt hectares of each acquisition.
func BurntArea(burn *cube.Stack, pixelSizeM float64) cube.Series {
	out := cube.Series{Times: append([]time.Time(nil), burn.Times...), Values: make([]float64, burn.Len())}
	for i := range burn.Slices {
		l, _ := burn.Slice(i)
		out.Values[i] = units.PixelsToHectares(l.Count(), pixelSizeM)
	}
	return out
}

// ReportMaxBurnExtent gives, per year, the largest burnt area and the date
// it was observed.
func ReportMaxBurnExtent(area cube.Series) []string {
	years := make(map[int]cube.Series)
	var order []int
	for i, t := range area.Times {
		y := t.UTC().Year()
		s, ok := years[y]
		if !ok {
			order = append(order, y)
		}
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, area.Values[i])
		years[y] = s
	}
	sort.Ints(order)
	var out []string
	for _, y := range order {
		s := years[y]
		i := s.ArgMax()
		if i < 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%d: %s ha burnt by the %s", y,
			strconv.FormatFloat(s.Values[i], 'f', -1, 64), s.Times[i].UTC().Format(cube.DateLayout)))
	}
	return out
}

// reportedHabitat reports whether burning of code is of interest: the
// semi-natural classes below 134, arable land and code 202, never open water.
func reportedHabitat(code int) bool {
	if code == 90 {
		return false
	}
	return code < 134 || code == 159 || code == 202
}

// HabitatReport is the burnt area per year and habitat, in hectares.
// Every year lists every habitat burnt in any year.
type HabitatReport struct {
	Years    []int
	Habitats []string
	Hectares map[int]map[string]float64
}

// ReportBurntHabitats overlays each year's burnt pixels on the habitat map.
func ReportBurntHabitats(ctx context.Context, burn *cube.Stack, habitats *cube.Layer, pixelSizeM float64) (*HabitatReport, error) {
	if !burn.Grid.Equal(habitats.Grid) {
		return nil, fmt.Errorf("burn map and habitat map: %w", cube.ErrGridMismatch)
	}
	r := &HabitatReport{Years: burn.Years(), Hectares: make(map[int]map[string]float64)}
	names := make(map[string]bool)
	for _, y := range r.Years {
		burnt, err := burn.Year(y).Sum(ctx)
		if err != nil {
			return nil, err
		}
		counts := make(map[int]int)
		for i, v := range burnt.Data {
			h := habitats.Data[i]
			if v > 0 && !cube.IsNaN(h) {
				counts[int(h)]++
			}
		}
		ha := make(map[string]float64)
		for code, n := range counts {
			if !reportedHabitat(code) {
				continue
			}
			name := habitat.Name(code)
			ha[name] += units.PixelsToHectares(n, pixelSizeM)
			names[name] = true
		}
		r.Hectares[y] = ha
	}
	for name := range names {
		r.Habitats = append(r.Habitats, name)
		for _, y := range r.Years {
			if _, ok := r.Hectares[y][name]; !ok {
				r.Hectares[y][name] = 0
			}
		}
	}
	sort.Strings(r.Habitats)
	monitoring.Logf("[fire] %d habitats burnt over %d years", len(r.Habitats), len(r.Years))
	return r, nil
}
