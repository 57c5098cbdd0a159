package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/indices"
	"github.com/livingwales/vproducts/internal/monitoring"
)

// OSMProduct is the rasterised OpenStreetMap extract used for roads and
// buildings.
const OSMProduct = "osm_free_geofabrik"

// OSMTime is the single acquisition of the OSM extract.
var OSMTime = cube.Days(2019, 3, 25, 2019, 3, 26)

// RoadCodes are the OSM road classes counted as artificial surface:
// motorway to tertiary, unclassified, residential, living street, the link
// roads, service roads and cycleways.
var RoadCodes = []int{5111, 5112, 5113, 5114, 5115, 5121, 5122, 5123, 5131, 5132, 5133, 5134, 5135, 5141, 5152}

func init() {
	register("s1_artiwoody", func(o Options) (Transformation, error) {
		cfg := o.config()
		th, months := float32(cfg.GetArtificialVHDB()), cfg.GetArtificialMonths()
		return &rule{name: "s1_artiwoody", band: "art", compute: func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
			return monthsBelow(ctx, data, func(v float32) bool { return v > th }, months)
		}}, nil
	})
	register("s2_artif", func(o Options) (Transformation, error) {
		th := float32(o.config().GetArtificialNDBI())
		return &rule{name: "s2_artif", band: "art", compute: func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
			ndbi, err := indices.Calculate(data, "NDBI", false)
			if err != nil {
				return nil, err
			}
			mean, err := ndbi.Mean(ctx)
			if err != nil {
				return nil, err
			}
			return mean.Map(func(v float32) float32 { return flag(v > th) }), nil
		}}, nil
	})
	register("artific_urb_cat", func(o Options) (Transformation, error) {
		return &rule{name: "artific_urb_cat", band: "artific_urb_cat", compute: func(ctx context.Context, data *cube.Dataset) (*cube.Layer, error) {
			return artificialSurfaces(ctx, data, o.Source)
		}}, nil
	})
}

// artificialSurfaces flags pixels all three sensors agree on and adds OSM
// roads and buildings when src is set.
func artificialSurfaces(ctx context.Context, data *cube.Dataset, src cube.Source) (*cube.Layer, error) {
	_, s, err := data.Only()
	if err != nil {
		return nil, err
	}
	sum, err := s.Sum(ctx)
	if err != nil {
		return nil, err
	}
	sentinel := sum.Map(func(v float32) float32 { return flag(v == 3) })
	if src == nil {
		monitoring.Logf("[vp] artific_urb_cat: no source configured, skipping OSM features")
		return sentinel, nil
	}
	osm, err := osmFeatures(ctx, src, data.Grid)
	if errors.Is(err, cube.ErrNoData) {
		monitoring.Logf("[vp] artific_urb_cat: %v", err)
		return sentinel, nil
	}
	if err != nil {
		return nil, err
	}
	return combine(func(v []float32) float32 { return bin(v[0] + v[1]) }, fill(sentinel), fill(osm))
}

// osmFeatures rasterises valid roads and buildings over g as a 0/1 layer.
func osmFeatures(ctx context.Context, src cube.Source, g cube.Grid) (*cube.Layer, error) {
	extent := g.Extent()
	ds, err := src.Load(ctx, cube.Query{
		Product:      OSMProduct,
		Measurements: []string{"roads", "buildings"},
		Extent:       &extent,
		Time:         OSMTime,
		Resolution:   g.Resolution(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load OSM features: %w", err)
	}
	first, err := ds.Isel(0)
	if err != nil {
		return nil, err
	}
	roads, err := first.Layer("roads")
	if err != nil {
		return nil, err
	}
	buildings, err := first.Layer("buildings")
	if err != nil {
		return nil, err
	}
	if !roads.Grid.Equal(g) {
		return nil, fmt.Errorf("OSM features: %w", cube.ErrGridMismatch)
	}
	valid := make(map[float32]bool, len(RoadCodes))
	for _, c := range RoadCodes {
		valid[float32(c)] = true
	}
	return combine(func(v []float32) float32 {
		n := float32(0)
		if valid[v[0]] {
			n++
		}
		if v[1] > 0 {
			n++
		}
		return bin(n)
	}, roads, buildings)
}
