package report

import (
	"bytes"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/msod/internal/analysis"
	"github.com/banshee-data/msod/internal/fsutil"
)

var (
	meanColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	habitatColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	plainColor   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
)

// SpectrumPlot draws the mean locus power spectrum and the habitat
// predictor's spectrum against MEM index.
func SpectrumPlot(rep *analysis.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Moran power spectrum"
	p.X.Label.Text = "MEM"
	p.Y.Label.Text = "r²"

	series := []struct {
		name  string
		vals  []float64
		color color.Color
	}{
		{"mean over loci", rep.MeanSpectrum, meanColor},
		{"habitat " + rep.Habitat, rep.HabitatSpectrum, habitatColor},
	}
	for _, s := range series {
		if len(s.vals) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.vals))
		for j, v := range s.vals {
			pts[j] = plotter.XY{X: float64(j + 1), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	return p, nil
}

// ZScorePlot draws every locus' MSOD z-score with the one-sided threshold
// for alpha. Flagged loci are drawn in red.
func ZScorePlot(rep *analysis.Report, alpha float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "MSOD z-scores"
	p.X.Label.Text = "Locus"
	p.Y.Label.Text = "z"

	pts := make(plotter.XYs, len(rep.Loci))
	for i, l := range rep.Loci {
		pts[i] = plotter.XY{X: float64(i + 1), Y: l.Z}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		gs := draw.GlyphStyle{Shape: draw.CircleGlyph{}, Radius: vg.Points(2), Color: plainColor}
		if rep.Loci[i].MSODOutlier {
			gs.Color = habitatColor
			gs.Radius = vg.Points(3)
		}
		return gs
	}
	p.Add(sc)

	if alpha > 0 && alpha < 1 {
		thr := distuv.UnitNormal.Quantile(1 - alpha)
		line := plotter.NewFunction(func(float64) float64 { return thr })
		line.Color = meanColor
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("z at α=%g", alpha), line)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// MEMMapPlot draws the sites coloured by the values of MEM j.
func MEMMapPlot(rep *analysis.Report, j int) (*plot.Plot, error) {
	if rep.Basis == nil || rep.Coordinates == nil {
		return nil, fmt.Errorf("report has no basis to map")
	}
	if j < 0 || j >= rep.Basis.K() {
		return nil, fmt.Errorf("MEM %d out of range [0, %d)", j+1, rep.Basis.K())
	}
	vals := rep.Basis.Vector(j)

	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo, hi = min(lo, v), max(hi, v)
	}
	cmap := moreland.SmoothBlueRed()
	if hi > lo {
		cmap.SetMin(lo)
		cmap.SetMax(hi)
	} else {
		cmap.SetMin(lo - 1)
		cmap.SetMax(hi + 1)
	}

	n, _ := rep.Coordinates.Dims()
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		pts[i] = plotter.XY{X: rep.Coordinates.At(i, 0), Y: rep.Coordinates.At(i, 1)}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c, err := cmap.At(vals[i])
		if err != nil {
			c = plainColor
		}
		return draw.GlyphStyle{Shape: draw.CircleGlyph{}, Radius: vg.Points(4), Color: c}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("MEM %d (λ=%.3g, I=%.3g)", j+1, rep.Basis.Eigenvalues[j], rep.Basis.MoranI[j])
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(sc)
	return p, nil
}

// savePNG renders p through fsys.
func savePNG(fsys fsutil.FileSystem, p *plot.Plot, w, h vg.Length, path string) error {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return err
	}
	return fsys.WriteFile(path, buf.Bytes(), 0o644)
}

// WritePlots renders the spectrum, z-score and first-MEM plots as PNGs into
// dir and returns the written paths.
func WritePlots(fsys fsutil.FileSystem, dir string, rep *analysis.Report, alpha float64) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string
	save := func(name string, p *plot.Plot, w, h vg.Length) error {
		path := filepath.Join(dir, name)
		if err := savePNG(fsys, p, w, h, path); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	sp, err := SpectrumPlot(rep)
	if err != nil {
		return written, err
	}
	if err := save("spectrum.png", sp, 10*vg.Inch, 5*vg.Inch); err != nil {
		return written, err
	}

	zp, err := ZScorePlot(rep, alpha)
	if err != nil {
		return written, err
	}
	if err := save("zscores.png", zp, 10*vg.Inch, 5*vg.Inch); err != nil {
		return written, err
	}

	if rep.Basis != nil && rep.Basis.K() > 0 {
		mp, err := MEMMapPlot(rep, 0)
		if err != nil {
			return written, err
		}
		if err := save("mem1_map.png", mp, 7*vg.Inch, 7*vg.Inch); err != nil {
			return written, err
		}
	}
	return written, nil
}
