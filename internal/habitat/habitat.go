// Package habitat holds the Living Wales habitat classes and loads the
// habitat map.
package habitat

import (
	"context"
	"fmt"
	"sort"

	"github.com/livingwales/vproducts/internal/cube"
)

const (
	// Product is the Living Wales habitat map.
	Product = "lw_habitats_lw"
	// Band holds the detailed habitat code.
	Band = "detailed"
	// MapYear is the edition of the habitat map.
	MapYear = 2020
)

// Names maps habitat codes to class names.
var Names = map[int]string{
	3:   "SemiNatural grass",
	4:   "Juncus communities",
	5:   "Molinia communities",
	10:  "Woodland and scrub",
	12:  "Broadleaved woodland",
	16:  "Coniferous woodland",
	23:  "Scrub",
	35:  "Acid grassland",
	38:  "Neutral grassland",
	41:  "Calcareous grassland",
	44:  "Improved grassland",
	45:  "Marsh/marshy grassland",
	50:  "Bracken",
	58:  "Dry dwarf shrub heath",
	61:  "Wet dwarf shrub heath",
	70:  "Blanket sphagnum bog",
	71:  "Raised sphagnum bog",
	72:  "Wet modified bog",
	73:  "Dry modified bog",
	78:  "Fen",
	85:  "Peat - bare",
	86:  "Swamp",
	90:  "Open Water",
	106: "Intertidal vegetation Generic",
	107: "Intertidal Bare Generic",
	116: "Intertidal - boulders/rocks",
	119: "Saltmarsh",
	128: "Sand dune",
	130: "Dune grassland",
	131: "Dune heath",
	132: "Dune scrub",
	134: "Maritime cliff and slope",
	135: "Hard cliff",
	136: "Soft cliff",
	142: "Natural rock exposure and waste",
	143: "Inland cliff",
	146: "Scree",
	150: "Other rock exposure",
	155: "Quarry",
	159: "Cultivated (arables)",
	200: "Artificial bare surfaces",
	201: "Natural bare surfaces",
}

// Name returns the class name of code. Codes without a class, such as 202,
// are named "Unknown (<code>)".
func Name(code int) string {
	if n, ok := Names[code]; ok {
		return n
	}
	return fmt.Sprintf("Unknown (%d)", code)
}

// Codes lists the known habitat codes in ascending order.
func Codes() []int {
	out := make([]int, 0, len(Names))
	for c := range Names {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// LoadMap loads the habitat map over extent at 10 m. Code 0 is nodata.
func LoadMap(ctx context.Context, src cube.Source, extent cube.Extent) (*cube.Layer, error) {
	ds, err := src.Load(ctx, cube.Query{
		Product:      Product,
		Measurements: []string{Band},
		Extent:       &extent,
		Time:         cube.Days(MapYear, 1, 1, MapYear, 12, 31),
		Resolution:   10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load habitat map: %w", err)
	}
	s, err := ds.Band(Band)
	if err != nil {
		return nil, err
	}
	if s.Len() != 1 {
		return nil, fmt.Errorf("habitat map has %d time slices, want 1", s.Len())
	}
	l, err := s.Slice(0)
	if err != nil {
		return nil, err
	}
	return l.Where(func(v float32) bool { return v != 0 }), nil
}
