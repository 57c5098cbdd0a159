// Package sites names the study areas used by the flood, forest and burnt
// area themes.
package sites

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/livingwales/vproducts/internal/cube"
)

// ErrUnknownSite is returned when a site is not in the requested group.
var ErrUnknownSite = errors.New("unknown site")

const (
	// BNG is the British National Grid used by the Sentinel-1 products.
	BNG = "EPSG:27700"
	// WGS84 is used by the burnt area extents.
	WGS84 = "EPSG:4326"

	// S1Product is the terrain-corrected Sentinel-1 backscatter product.
	S1Product = "sen1_rtc_pyroSNAP"
	// S2Product is the Sentinel-2 surface reflectance product.
	S2Product = "sen2_l2a_gcp"
)

// Site is a named study area.
type Site struct {
	Name   string      `json:"name"`
	Extent cube.Extent `json:"extent"`
}

// Group is an ordered list of sites. Sites are numbered from 1.
type Group []Site

func bng(name string, minX, minY, maxX, maxY float64) Site {
	return Site{Name: name, Extent: cube.Extent{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, CRS: BNG}}
}

func wgs84(name string, minX, minY, maxX, maxY float64) Site {
	return Site{Name: name, Extent: cube.Extent{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, CRS: WGS84}}
}

// Flood sites along the main Welsh rivers.
var Flood = Group{
	bng("River Wye", 330650, 243050, 337330, 248690),
	bng("River Usk", 332950, 188900, 342480, 198900),
	bng("Severn", 321930, 308340, 332030, 316870),
	bng("River Dee", 336140, 342860, 342950, 351810),
}

// Forest sites with commercial plantations.
var Forest = Group{
	bng("Cefn Fannog", 280400, 251900, 284040, 255080),
	bng("Esgair Gelli", 277600, 254000, 281000, 257750),
}

// Burn sites of recent upland fires.
var Burn = Group{
	wgs84("Glanaman", -3.93625, 51.814918, -3.843181, 51.855518),
	wgs84("Bwlch Corog", -3.865763, 52.522037, -3.827761, 52.542997),
	wgs84("Mynydd Mawr", -4.216724, 53.054927, -4.149385, 53.085853),
	wgs84("Foel Feddau", -4.787036, 51.941578, -4.686715, 51.982923),
	wgs84("Mynydd Llanllwni", -4.196349, 52.009084, -4.177463, 52.019668),
}

// Groups maps theme names to their sites.
var Groups = map[string]Group{
	"flood":  Flood,
	"forest": Forest,
	"fire":   Burn,
}

// Lookup finds a site by its 1-based number or by name. Names match without
// regard to case and may drop a leading "River", so "wye" finds River Wye.
func (g Group) Lookup(key string) (Site, error) {
	key = strings.TrimSpace(key)
	if n, err := strconv.Atoi(key); err == nil {
		if n < 1 || n > len(g) {
			return Site{}, fmt.Errorf("site %d out of range 1..%d: %w", n, len(g), ErrUnknownSite)
		}
		return g[n-1], nil
	}
	for _, s := range g {
		name := strings.ToLower(s.Name)
		k := strings.ToLower(key)
		if name == k || strings.TrimPrefix(name, "river ") == k {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("site %q (valid: %s): %w", key, strings.Join(g.Names(), ", "), ErrUnknownSite)
}

// Names lists the site names in order.
func (g Group) Names() []string {
	out := make([]string, len(g))
	for i, s := range g {
		out[i] = s.Name
	}
	return out
}

// Query builds a 10 m query of product over the site between two
// YYYY-MM-DD dates.
func (s Site) Query(from, to, product string, measurements ...string) (cube.Query, error) {
	r, err := cube.ParseDateRange(from, to)
	if err != nil {
		return cube.Query{}, err
	}
	e := s.Extent
	return cube.Query{
		Product:      product,
		Measurements: measurements,
		Extent:       &e,
		Time:         r,
		Resolution:   10,
	}, nil
}
