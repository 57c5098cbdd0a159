// Package crop separates grass, winter and spring crops from the Sentinel-1
// backscatter of agricultural parcels. Each parcel is described by the median
// VH and VH/VV ratio of its pixels over one growing season; the season is
// split into windows and the Mann-Kendall trend of each window drives a fixed
// chain of rules.
package crop

import (
	"context"
	"fmt"
	"time"

	"github.com/livingwales/vproducts/internal/compute"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
	"github.com/livingwales/vproducts/internal/stats"
)

// Type is the seasonality class assigned to a parcel.
type Type string

const (
	None   Type = ""
	Grass  Type = "Grass"
	Winter Type = "Winter"
	Spring Type = "Spring"
)

// Season is the backscatter of one parcel over a growing season.
type Season struct {
	Parcel string      `json:"parcel"`
	VH     cube.Series `json:"vh"`
	// Ratio is the VH/VV ratio in dB.
	Ratio cube.Series `json:"ratio"`
	// Year is the harvest year. Zero derives it from the observations.
	Year int `json:"year,omitempty"`
}

// yearIndex is the observation whose year names the season when Year is unset.
const yearIndex = 100

// SeasonYear returns s.Year, or the year of the 101st VH observation, or of
// the last one when the series is shorter.
func (s Season) SeasonYear() int {
	if s.Year != 0 {
		return s.Year
	}
	n := len(s.VH.Times)
	switch {
	case n > yearIndex:
		return s.VH.Times[yearIndex].UTC().Year()
	case n > 0:
		return s.VH.Times[n-1].UTC().Year()
	}
	return 0
}

// Decision is the class of a parcel and the rule that assigned it.
type Decision struct {
	Parcel string `json:"parcel"`
	Year   int    `json:"year"`
	Type   Type   `json:"type"`
	Step   string `json:"step,omitempty"`
}

// Significance levels of the trend rules.
const (
	pSeason = 0.01
	pStrict = 1e-5
	pLoose  = 1e-3
	pWeak   = 0.05
)

// trends holds the Mann-Kendall results of the ratio windows of one season.
type trends struct {
	decFeb, febApr, aprJun, junAug stats.MKResult
	decJun, mayJun, janJun, junJul stats.MKResult
}

func mk(s cube.Series, r cube.DateRange) stats.MKResult {
	return stats.MannKendall(s.Range(r).Values, stats.DefaultAlpha)
}

func seasonTrends(ratio cube.Series, y int) trends {
	return trends{
		decFeb: mk(ratio, cube.Days(y-1, time.December, 1, y, time.January, 31)),
		febApr: mk(ratio, cube.Days(y, time.February, 1, y, time.March, 31)),
		aprJun: mk(ratio, cube.Days(y, time.April, 1, y, time.May, 15)),
		junAug: mk(ratio, cube.Days(y, time.June, 1, y, time.July, 31)),
		decJun: mk(ratio, cube.Days(y-1, time.December, 1, y, time.May, 15)),
		mayJun: mk(ratio, cube.Days(y, time.May, 1, y, time.May, 31)),
		janJun: mk(ratio, cube.Days(y, time.January, 1, y, time.May, 15)),
		junJul: mk(ratio, cube.Days(y, time.June, 1, y, time.June, 30)),
	}
}

// Decide runs the rule chain on one season. The first matching rule wins.
func Decide(s Season) Decision {
	y := s.SeasonYear()
	d := Decision{Parcel: s.Parcel, Year: y}
	set := func(t Type, step string) Decision {
		d.Type, d.Step = t, step
		return d
	}

	// grass keeps a flat VH through spring and summer
	vh := s.VH.Range(cube.Days(y, time.February, 1, y, time.August, 31))
	if vh.Max()-vh.Min() <= 5 {
		return set(Grass, "grass_level1")
	}
	dVH := spread(s.VH.Range(cube.Days(y, time.May, 1, y, time.August, 31)))
	dR := spread(s.Ratio.Range(cube.Days(y, time.March, 1, y, time.August, 31)))
	if dVH < 8 || (dR < 7 && dVH < 9) {
		return set(Grass, "grass_level2")
	}

	t := seasonTrends(s.Ratio, y)
	// Only the rising, rising, falling pattern settles a parcel here. Steady
	// rises and falls through spring carry on to the winter rules below.
	if t.decFeb.Rising(pSeason) && t.febApr.Rising(pSeason) && t.aprJun.Falling(pSeason) {
		return set(Spring, "ws_level4")
	}

	if t.aprJun.Rising(pSeason) && t.febApr.Valid && t.febApr.P < pSeason && t.febApr.Slope != 0 {
		peak := s.Ratio.Range(cube.Days(y, time.March, 1, y, time.October, 31))
		low := s.Ratio.Range(cube.Days(y, time.March, 1, y, time.April, 15))
		hi, lo := peak.ArgMax(), low.ArgMin()
		// bounds are midnight, so a peak during 31 July is too late
		if hi >= 0 && lo >= 0 &&
			low.Times[lo].Before(time.Date(y, time.April, 1, 0, 0, 0, 0, time.UTC)) &&
			!peak.Times[hi].After(time.Date(y, time.July, 31, 0, 0, 0, 0, time.UTC)) {
			return set(Winter, "ws_level10")
		}
	}

	switch {
	case t.mayJun.Valid && t.decJun.P < pStrict && t.decJun.Slope > 0.01 &&
		t.mayJun.P < pStrict && t.mayJun.Slope > -0.1:
		return set(Winter, "ws_level26")
	case t.decJun.Rising(pStrict) && t.aprJun.Rising(pStrict) && t.junAug.Falling(pStrict):
		return set(Winter, "ws_level27")
	case t.decJun.Rising(pLoose) && t.aprJun.Rising(pLoose) && t.junAug.Falling(pLoose):
		return set(Winter, "ws_level28")
	case t.decJun.Rising(pLoose) && t.aprJun.Rising(pLoose) && t.junJul.Falling(pSeason):
		return set(Winter, "ws_level28b")
	case t.janJun.Rising(pStrict) && t.junAug.Falling(pWeak):
		return set(Winter, "ws_level29")
	case t.mayJun.Valid:
		return set(Spring, "ws_level29")
	}
	return d
}

// spread is max - min of the valid values, NaN when there are none.
func spread(s cube.Series) float64 { return s.Max() - s.Min() }

// Classify decides every season in parallel. Decisions keep input order.
func Classify(ctx context.Context, seasons []Season) ([]Decision, error) {
	done := monitoring.Stage("crop_seasonality")
	defer done()
	out := make([]Decision, len(seasons))
	err := compute.Each(ctx, len(seasons), func(i int) error {
		out[i] = Decide(seasons[i])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to classify parcels: %w", err)
	}
	return out, nil
}

// Counts tallies decisions by type.
func Counts(ds []Decision) map[Type]int {
	out := make(map[Type]int)
	for _, d := range ds {
		out[d.Type]++
	}
	return out
}
