package report

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/msod/internal/analysis"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ChartData is what the interactive page needs. It can be built from a
// fresh Report or from a stored run.
type ChartData struct {
	Title        string
	Habitat      string
	Loci         []analysis.LocusResult
	MeanPower    []float64
	HabitatPower []float64
	MoranI       []float64
}

// FromReport extracts the chart inputs of rep.
func FromReport(rep *analysis.Report, title string) ChartData {
	return ChartData{
		Title:        title,
		Habitat:      rep.Habitat,
		Loci:         rep.Loci,
		MeanPower:    rep.MeanSpectrum,
		HabitatPower: rep.HabitatSpectrum,
		MoranI:       rep.MoranI,
	}
}

// negLog10 maps a p-value to -log10 p. p = 0 is clamped so the value stays
// finite for JSON.
func negLog10(p float64) float64 {
	if p <= 0 {
		p = math.SmallestNonzeroFloat64
	}
	return -math.Log10(p)
}

func msrChart(d ChartData) *charts.Scatter {
	var plain, flagged []opts.ScatterData
	for i, l := range d.Loci {
		pt := opts.ScatterData{Name: l.Locus, Value: []interface{}{i + 1, negLog10(l.MSRP)}}
		if l.MSROutlier {
			flagged = append(flagged, pt)
		} else {
			plain = append(plain, pt)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "MSR association with habitat", Subtitle: fmt.Sprintf("habitat=%s loci=%d", d.Habitat, len(d.Loci))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Locus", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "-log10 p", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("loci", plain, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("outliers", flagged, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	return scatter
}

func spectrumChart(d ChartData) *charts.Bar {
	x := make([]string, len(d.MeanPower))
	mean := make([]opts.BarData, len(d.MeanPower))
	for j, v := range d.MeanPower {
		x[j] = fmt.Sprintf("MEM%d", j+1)
		mean[j] = opts.BarData{Value: v}
	}
	habitat := make([]opts.BarData, len(d.HabitatPower))
	for j, v := range d.HabitatPower {
		habitat[j] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Moran power spectrum"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("mean over loci", mean).
		AddSeries("habitat", habitat)
	return bar
}

// RenderHTML writes an interactive page with the MSR scatter and the
// power spectrum bars.
func RenderHTML(w io.Writer, d ChartData) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	if d.Title != "" {
		page.PageTitle = d.Title
	}
	page.AddCharts(msrChart(d), spectrumChart(d))
	return page.Render(w)
}

// HTML renders the page into memory.
func HTML(d ChartData) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, d); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
