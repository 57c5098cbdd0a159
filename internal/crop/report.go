package crop

import "sort"

// Colours maps the crop types of the field survey to chart colours.
var Colours = map[string]string{
	"Winter wheat":  "gold",
	"Rapeseed":      "yellow",
	"Winter barley": "mediumseagreen",
	"Spring barley": "darkseagreen",
	"Spring wheat":  "khaki",
	"Maize":         "darkgreen",
	"Other":         "lightgrey",
	"Grass":         "yellowgreen",
}

// AllTypes selects every crop type in TypeArea.
const AllTypes = "All"

// Field is a surveyed parcel with its crop type per year.
type Field struct {
	ID string `json:"id"`
	// AreaM2 is the parcel area in square metres.
	AreaM2 float64        `json:"area_m2"`
	Types  map[int]string `json:"types"`
}

// TypeArea sums field area in hectares per year and crop type. A cropType
// other than AllTypes keeps only the fields of that type in each year.
func TypeArea(fields []Field, cropType string, years []int) map[int]map[string]float64 {
	out := make(map[int]map[string]float64, len(years))
	for _, y := range years {
		area := make(map[string]float64)
		for _, f := range fields {
			t, ok := f.Types[y]
			if !ok || (cropType != AllTypes && t != cropType) {
				continue
			}
			area[t] += f.AreaM2 / 10000
		}
		out[y] = area
	}
	return out
}

// Years lists the survey years present in fields, ascending.
func Years(fields []Field) []int {
	seen := make(map[int]bool)
	for _, f := range fields {
		for y := range f.Types {
			seen[y] = true
		}
	}
	out := make([]int, 0, len(seen))
	for y := range seen {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}
