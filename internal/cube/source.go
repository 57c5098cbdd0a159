package cube

import (
	"context"
	"encoding/json"
	"errors"
	"math"
)

// ErrNoData is returned by a Source when a query matches no observations.
var ErrNoData = errors.New("no data")

// Measurement describes an output band.
type Measurement struct {
	Name   string
	DType  string
	NoData float64
	Units  string
}

// Binary describes the float32, NaN-nodata, unitless bands every rule emits.
func Binary(name string) Measurement {
	return Measurement{Name: name, DType: "float32", NoData: math.NaN(), Units: "1"}
}

// MarshalJSON writes a NaN nodata value as the string "nan".
func (m Measurement) MarshalJSON() ([]byte, error) {
	var nodata interface{} = m.NoData
	if math.IsNaN(m.NoData) {
		nodata = "nan"
	}
	return json.Marshal(struct {
		Name   string      `json:"name"`
		DType  string      `json:"dtype"`
		NoData interface{} `json:"nodata"`
		Units  string      `json:"units"`
	}{m.Name, m.DType, nodata, m.Units})
}

// Query selects observations of a product.
type Query struct {
	Product      string    `json:"product"`
	Measurements []string  `json:"measurements,omitempty"`
	Extent       *Extent   `json:"extent,omitempty"`
	Time         DateRange `json:"time"`
	Resolution   float64   `json:"resolution,omitempty"`
}

// Source loads observations as datasets. Implementations return ErrNoData
// (possibly wrapped) when nothing matches.
type Source interface {
	Load(ctx context.Context, q Query) (*Dataset, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) (*Dataset, error)

func (f SourceFunc) Load(ctx context.Context, q Query) (*Dataset, error) { return f(ctx, q) }
