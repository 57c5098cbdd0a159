// Package api serves the catalog over HTTP: stored products, recipe runs,
// rendered layers and pixel time series.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/db"
	"github.com/livingwales/vproducts/internal/httputil"
	"github.com/livingwales/vproducts/internal/products"
	"github.com/livingwales/vproducts/internal/recipe"
	"github.com/livingwales/vproducts/internal/render"
	"github.com/livingwales/vproducts/internal/units"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Catalog is the part of the database the server reads.
type Catalog interface {
	cube.Source
	Products(ctx context.Context) ([]db.ProductSummary, error)
	Runs(ctx context.Context, limit int) ([]recipe.Run, error)
	Run(ctx context.Context, id string) (recipe.Run, error)
}

type Server struct {
	cat Catalog
	cfg *config.Config
}

func NewServer(cat Catalog, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.Empty()
	}
	return &Server{cat: cat, cfg: cfg}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	}
	return code
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", s.listProducts)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.showRun)
	mux.HandleFunc("/api/layers/{file}", s.renderLayer)
	mux.HandleFunc("/api/area", s.showArea)
	mux.HandleFunc("/charts/series", s.renderSeries)
	return mux
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return false
	}
	return true
}

// loadError maps catalog errors to responses.
func loadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cube.ErrNoData), errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, cube.ErrMissingBand):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalServerError(w, err)
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	stored, err := s.cat.Products(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	if stored == nil {
		stored = []db.ProductSummary{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"stored":          stored,
		"transformations": products.Names(),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.cat.Runs(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	if runs == nil {
		runs = []recipe.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	run, err := s.cat.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		loadError(w, err)
		return
	}
	httputil.WriteJSONOK(w, run)
}

// productQuery builds a catalog query from the product, band and time
// parameters. time selects a single day; from and to a range.
func productQuery(r *http.Request, product string) (cube.Query, error) {
	q := cube.Query{Product: product}
	v := r.URL.Query()
	if b := v.Get("band"); b != "" {
		q.Measurements = []string{b}
	}
	switch {
	case v.Get("time") != "":
		tr, err := cube.ParseDateRange(v.Get("time"), v.Get("time"))
		if err != nil {
			return q, err
		}
		q.Time = tr
	case v.Get("from") != "" || v.Get("to") != "":
		tr, err := cube.ParseDateRange(v.Get("from"), v.Get("to"))
		if err != nil {
			return q, err
		}
		q.Time = tr
	}
	return q, nil
}

// band returns the requested band of ds, or its only band.
func band(ds *cube.Dataset, q cube.Query) (string, *cube.Stack, error) {
	if len(q.Measurements) == 1 {
		s, err := ds.Band(q.Measurements[0])
		return q.Measurements[0], s, err
	}
	return ds.Only()
}

func (s *Server) renderLayer(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	product, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok || product == "" {
		httputil.NotFound(w, "layers are served as <product>.png")
		return
	}
	q, err := productQuery(r, product)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ds, err := s.cat.Load(r.Context(), q)
	if err != nil {
		loadError(w, err)
		return
	}
	name, st, err := band(ds, q)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	// the latest slice of the selection
	i := st.Len() - 1
	l, err := st.Slice(i)
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	title := product + " " + name
	if t := st.Times[i]; !t.IsZero() {
		title += " " + t.Format(cube.DateLayout)
	}

	var buf bytes.Buffer
	if err := render.LayerPNG(&buf, l, title); err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// AreaResponse is the flagged area of a product per time slice.
type AreaResponse struct {
	Product string    `json:"product"`
	Band    string    `json:"band"`
	Units   string    `json:"units"`
	Times   []string  `json:"times"`
	Area    []float64 `json:"area"`
}

func (s *Server) showArea(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	product := r.URL.Query().Get("product")
	if product == "" {
		httputil.BadRequest(w, "product is required")
		return
	}
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.HA
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, fmt.Sprintf("units must be one of: %s", units.GetValidUnitsString()))
		return
	}
	q, err := productQuery(r, product)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ds, err := s.cat.Load(r.Context(), q)
	if err != nil {
		loadError(w, err)
		return
	}
	name, st, err := band(ds, q)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	resp := AreaResponse{Product: product, Band: name, Units: unit}
	pixel := units.PixelArea(s.cfg.GetPixelSizeM())
	for i, data := range st.Slices {
		n := 0
		for _, v := range data {
			if !cube.IsNaN(v) && v > 0 {
				n++
			}
		}
		resp.Times = append(resp.Times, st.Times[i].Format(cube.DateLayout))
		resp.Area = append(resp.Area, units.ConvertArea(float64(n)*pixel, unit))
	}
	httputil.WriteJSONOK(w, resp)
}

// nearest returns the index of the coordinate within half a step of v, or
// -1 when v is outside the axis.
func nearest(axis []float64, v float64) int {
	if len(axis) == 0 {
		return -1
	}
	best, dist := -1, math.Inf(1)
	for i, a := range axis {
		if d := math.Abs(a - v); d < dist {
			best, dist = i, d
		}
	}
	half := math.Inf(1)
	if len(axis) > 1 {
		half = math.Abs(axis[1]-axis[0]) / 2
	}
	if dist > half {
		return -1
	}
	return best
}

func (s *Server) renderSeries(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	v := r.URL.Query()
	product := v.Get("product")
	if product == "" {
		httputil.BadRequest(w, "product is required")
		return
	}
	x, errX := strconv.ParseFloat(v.Get("x"), 64)
	y, errY := strconv.ParseFloat(v.Get("y"), 64)
	if errX != nil || errY != nil {
		httputil.BadRequest(w, "x and y must be coordinates in the product CRS")
		return
	}
	q, err := productQuery(r, product)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ds, err := s.cat.Load(r.Context(), q)
	if err != nil {
		loadError(w, err)
		return
	}
	name, st, err := band(ds, q)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	col, row := nearest(st.X, x), nearest(st.Y, y)
	if col < 0 || row < 0 {
		httputil.NotFound(w, fmt.Sprintf("(%g, %g) is outside %s", x, y, product))
		return
	}
	series := st.Series(col, row)

	var buf bytes.Buffer
	title := fmt.Sprintf("%s %s at (%g, %g)", product, name, x, y)
	if err := render.SeriesPage(&buf, title, render.Named{Name: name, Series: series}); err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
