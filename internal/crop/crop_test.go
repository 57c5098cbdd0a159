package crop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/monitoring"
)

func init() { monitoring.SetLogger(nil) }

var (
	seasonStart = time.Date(2019, time.September, 1, 11, 0, 0, 0, time.UTC)
	seasonEnd   = time.Date(2020, time.October, 31, 11, 0, 0, 0, time.UTC)
)

// daily builds a series with one observation a day over the test season.
func daily(f func(t time.Time) float64) cube.Series {
	var s cube.Series
	for t := seasonStart; !t.After(seasonEnd); t = t.AddDate(0, 0, 1) {
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, f(t))
	}
	return s
}

func date(m time.Month, d int) time.Time {
	return time.Date(2020, m, d, 11, 0, 0, 0, time.UTC)
}

// days counts whole days from the given 2020 date to t.
func days(t time.Time, m time.Month, d int) float64 {
	return t.Sub(date(m, d)).Hours() / 24
}

// summerJump is a VH series that steps by 10 dB at the start of June, so
// neither grass rule fires.
var summerJump = daily(func(t time.Time) float64 {
	if t.Before(date(time.June, 1)) {
		return -20
	}
	return -10
})

func season(ratio func(t time.Time) float64) Season { return seasonOf(daily(ratio)) }

func seasonOf(ratio cube.Series) Season {
	return Season{Parcel: "p", VH: summerJump, Ratio: ratio, Year: 2020}
}

// thin keeps every nth observation inside r, counting from the first one.
func thin(s cube.Series, r cube.DateRange, n int) cube.Series {
	var out cube.Series
	k := 0
	for i, t := range s.Times {
		if r.Contains(t) {
			k++
			if (k-1)%n != 0 {
				continue
			}
		}
		out.Times = append(out.Times, t)
		out.Values = append(out.Values, s.Values[i])
	}
	return out
}

// slowRise climbs 0.005 a day from December, pauses through February and
// March, then climbs again until the end of May. Summer is left as is.
func slowRise(s cube.Series) cube.Series {
	out := cube.Series{Times: s.Times, Values: make([]float64, len(s.Values))}
	for i, t := range s.Times {
		switch {
		case t.Before(date(time.February, 1)):
			out.Values[i] = 0.005 * days(t, time.January, 1)
		case t.Before(date(time.April, 1)):
			out.Values[i] = 0.15
		case t.Before(date(time.June, 1)):
			out.Values[i] = 0.15 + 0.005*days(t, time.March, 31)
		default:
			out.Values[i] = s.Values[i]
		}
	}
	return out
}

// summerFall drops 0.1 a day from the end of May.
func summerFall(t time.Time) float64 { return 0.455 - 0.1*days(t, time.May, 31) }

// juneDip falls through June and climbs back higher through July.
func juneDip(t time.Time) float64 {
	if t.Before(date(time.July, 1)) {
		return summerFall(t)
	}
	return -2.545 + 0.2*days(t, time.June, 30)
}

func TestDecide(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		s    Season
		typ  Type
		step string
	}{
		{
			name: "flat VH is grass",
			s:    Season{VH: daily(func(time.Time) float64 { return -15 }), Ratio: daily(func(time.Time) float64 { return -8 }), Year: 2020},
			typ:  Grass,
			step: "grass_level1",
		},
		{
			name: "early drop then stable summer is grass",
			s: Season{
				VH: daily(func(t time.Time) float64 {
					if t.Before(date(time.March, 1)) {
						return -25
					}
					return -15
				}),
				Ratio: daily(func(time.Time) float64 { return -8 }),
				Year:  2020,
			},
			typ:  Grass,
			step: "grass_level2",
		},
		{
			name: "rising to May then falling is winter by its spring minimum",
			s: season(func(t time.Time) float64 {
				if t.Before(date(time.May, 16)) {
					return 0.1 * days(t, time.January, 1)
				}
				return -0.1 * days(t, time.May, 16)
			}),
			typ:  Winter,
			step: "ws_level10",
		},
		{
			name: "rising all season is winter",
			s:    season(func(t time.Time) float64 { return 0.1 * days(t, time.January, 1) }),
			typ:  Winter,
			step: "ws_level26",
		},
		{
			name: "falling to May falls back to spring",
			s:    season(func(t time.Time) float64 { return -0.1 * days(t, time.January, 1) }),
			typ:  Spring,
			step: "ws_level29",
		},
		{
			name: "falling to April then rising falls back to spring",
			s: season(func(t time.Time) float64 {
				if t.Before(date(time.April, 1)) {
					return -0.1 * days(t, time.January, 1)
				}
				return -9 + 0.05*days(t, time.April, 1)
			}),
			typ:  Spring,
			step: "ws_level29",
		},
		{
			name: "rising to April then falling is spring",
			s: season(func(t time.Time) float64 {
				if t.Before(date(time.April, 1)) {
					return 0.1 * days(t, time.January, 1)
				}
				return 9 - 0.1*days(t, time.April, 1)
			}),
			typ:  Spring,
			step: "ws_level4",
		},
		{
			name: "spring minimum and early summer peak is winter",
			s: season(func(t time.Time) float64 {
				switch {
				case t.Before(date(time.February, 1)):
					return 0
				case t.Before(date(time.April, 1)):
					return -0.1 * days(t, time.February, 1)
				case t.Before(date(time.July, 1)):
					return -5 + 0.1*days(t, time.April, 1)
				}
				return 4 - 0.1*days(t, time.July, 1)
			}),
			typ:  Winter,
			step: "ws_level10",
		},
		{
			name: "steady rise from February is winter",
			s: season(func(t time.Time) float64 {
				if t.Before(date(time.February, 1)) {
					return 0
				}
				return 0.1 * days(t, time.February, 1)
			}),
			typ:  Winter,
			step: "ws_level26",
		},
		{
			name: "slow rise and sharp summer fall is winter",
			s:    seasonOf(slowRise(daily(summerFall))),
			typ:  Winter,
			step: "ws_level27",
		},
		{
			name: "slow rise and weaker summer fall is winter",
			s:    seasonOf(slowRise(thin(daily(summerFall), cube.Days(2020, time.June, 1, 2020, time.July, 31), 6))),
			typ:  Winter,
			step: "ws_level28",
		},
		{
			name: "slow rise and June fall is winter",
			s:    seasonOf(slowRise(thin(daily(juneDip), cube.Days(2020, time.June, 1, 2020, time.June, 30), 5))),
			typ:  Winter,
			step: "ws_level28b",
		},
		{
			name: "rise to a spring plateau then summer fall is winter",
			s: seasonOf(thin(daily(func(t time.Time) float64 {
				switch {
				case t.Before(date(time.April, 1)):
					return 0.05 * days(t, time.January, 1)
				case t.Before(date(time.June, 1)):
					return 5
				}
				return 5 - 0.1*days(t, time.May, 31)
			}), cube.Days(2020, time.June, 1, 2020, time.July, 31), 15)),
			typ:  Winter,
			step: "ws_level29",
		},
		{
			name: "no trend with May observations falls back to spring",
			s:    season(func(time.Time) float64 { return -8 }),
			typ:  Spring,
			step: "ws_level29",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Decide(tt.s)
			assert.Equal(t, tt.typ, d.Type)
			assert.Equal(t, tt.step, d.Step)
			assert.Equal(t, 2020, d.Year)
		})
	}
}

func TestDecide_PeakOnLastDayOfJuly(t *testing.T) {
	t.Parallel()
	// minimum at the end of March, peak on 30 July
	base := season(func(t time.Time) float64 {
		switch {
		case t.Before(date(time.February, 1)):
			return 0
		case t.Before(date(time.April, 1)):
			return -0.1 * days(t, time.February, 1)
		case t.Before(date(time.July, 31)):
			return -5 + 0.05*days(t, time.April, 1)
		}
		return -5 - 0.1*days(t, time.July, 31)
	})
	d := Decide(base)
	assert.Equal(t, Winter, d.Type)
	assert.Equal(t, "ws_level10", d.Step)

	late := seasonOf(cube.Series{
		Times:  append([]time.Time(nil), base.Ratio.Times...),
		Values: append([]float64(nil), base.Ratio.Values...),
	})
	for i, ts := range late.Ratio.Times {
		if ts.Equal(date(time.July, 31)) {
			late.Ratio.Times[i] = time.Date(2020, time.July, 31, 6, 18, 0, 0, time.UTC)
			late.Ratio.Values[i] = 10
		}
	}
	d = Decide(late)
	assert.Equal(t, Spring, d.Type)
	assert.Equal(t, "ws_level29", d.Step)
}

func TestDecide_NoMayObservations(t *testing.T) {
	t.Parallel()
	s := season(func(time.Time) float64 { return -8 })
	s.Ratio = s.Ratio.Range(cube.Days(2019, time.September, 1, 2020, time.April, 30))

	d := Decide(s)
	assert.Equal(t, None, d.Type)
	assert.Empty(t, d.Step)
}

func TestSeasonYear(t *testing.T) {
	t.Parallel()
	s := Season{VH: daily(func(time.Time) float64 { return 0 })}
	// the 101st day after 1 September 2019 is in December
	assert.Equal(t, 2019, s.SeasonYear())

	short := Season{VH: s.VH.Range(cube.Days(2019, time.September, 1, 2019, time.September, 30))}
	assert.Equal(t, 2019, short.SeasonYear())

	late := Season{VH: s.VH.Range(cube.Days(2020, time.January, 1, 2020, time.March, 1))}
	assert.Equal(t, 2020, late.SeasonYear())

	assert.Equal(t, 0, Season{}.SeasonYear())
	assert.Equal(t, 2018, Season{Year: 2018, VH: s.VH}.SeasonYear())
}

func TestClassify(t *testing.T) {
	t.Parallel()
	grass := Season{Parcel: "a", VH: daily(func(time.Time) float64 { return -15 }), Year: 2020}
	spring := season(func(time.Time) float64 { return -8 })
	spring.Parcel = "b"

	got, err := Classify(context.Background(), []Season{grass, spring, grass})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Parcel)
	assert.Equal(t, Grass, got[0].Type)
	assert.Equal(t, "b", got[1].Parcel)
	assert.Equal(t, Spring, got[1].Type)
	assert.Equal(t, map[Type]int{Grass: 2, Spring: 1}, Counts(got))
}

func TestClassify_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Classify(ctx, []Season{{Year: 2020}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTypeArea(t *testing.T) {
	t.Parallel()
	fields := []Field{
		{ID: "1", AreaM2: 20000, Types: map[int]string{2018: "Maize", 2019: "Grass"}},
		{ID: "2", AreaM2: 5000, Types: map[int]string{2018: "Maize", 2019: "Maize"}},
		{ID: "3", AreaM2: 10000, Types: map[int]string{2019: "Rapeseed"}},
	}
	years := Years(fields)
	assert.Equal(t, []int{2018, 2019}, years)

	all := TypeArea(fields, AllTypes, years)
	assert.Equal(t, map[string]float64{"Maize": 2.5}, all[2018])
	assert.Equal(t, map[string]float64{"Grass": 2, "Maize": 0.5, "Rapeseed": 1}, all[2019])

	maize := TypeArea(fields, "Maize", years)
	assert.Equal(t, map[string]float64{"Maize": 2.5}, maize[2018])
	assert.Equal(t, map[string]float64{"Maize": 0.5}, maize[2019])

	for name := range all[2019] {
		assert.Contains(t, Colours, name)
	}
}
