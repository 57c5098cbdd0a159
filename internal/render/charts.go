package render

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/livingwales/vproducts/internal/cube"
)

// AssetsHost serves the echarts scripts referenced by rendered pages.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Named is a series with a legend label.
type Named struct {
	Name   string
	Series cube.Series
}

// points converts s to [time, value] pairs. NaN becomes null so the line
// breaks instead of failing to encode.
func points(s cube.Series) []opts.LineData {
	out := make([]opts.LineData, len(s.Values))
	for i, v := range s.Values {
		var y interface{}
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			y = v
		}
		out[i] = opts.LineData{Value: []interface{}{s.Times[i].UTC().Format("2006-01-02T15:04:05Z"), y}}
	}
	return out
}

func newLine(title, subtitle, yName string, series ...Named) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "date"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yName, Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	for _, s := range series {
		line.AddSeries(s.Name, points(s.Series), charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(false), ShowSymbol: opts.Bool(s.Series.Len() < 200)}))
	}
	return line
}

// SeriesPage renders the series on one time-axis line chart.
func SeriesPage(w io.Writer, title string, series ...Named) error {
	if len(series) == 0 {
		return fmt.Errorf("no series to render")
	}
	n := 0
	for _, s := range series {
		n += s.Series.Len()
	}
	line := newLine(title, fmt.Sprintf("%d series, %d points", len(series), n), "value", series...)
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(line)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render %s: %w", title, err)
	}
	return nil
}

// CropPage renders the backscatter a crop decision is based on: VH, VV and
// the VH/VV ratio of one parcel.
func CropPage(w io.Writer, parcel string, decision string, vh, vv, ratio cube.Series) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = "Parcel " + parcel
	page.AddCharts(
		newLine("VH", "parcel "+parcel, "dB", Named{"VH", vh}),
		newLine("VV", "parcel "+parcel, "dB", Named{"VV", vv}),
		newLine("VH/VV", decision, "dB", Named{"VH/VV", ratio}),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render parcel %s: %w", parcel, err)
	}
	return nil
}
