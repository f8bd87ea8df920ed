// Package report turns analysis results into tables, PNG plots and an
// interactive HTML page.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/msod/internal/analysis"
	"github.com/banshee-data/msod/internal/fsutil"
	"github.com/banshee-data/msod/internal/monitoring"
)

var tsvHeader = []string{
	"locus", "frequency", "distance", "z_score", "msod_p", "msod_p_adj", "msod_outlier",
	"msr_p", "msr_p_adj", "msr_outlier",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// WriteTSV writes one tab-separated row per locus with a header.
func WriteTSV(w io.Writer, loci []analysis.LocusResult) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(tsvHeader); err != nil {
		return err
	}
	for _, l := range loci {
		rec := []string{
			l.Locus,
			formatFloat(l.Frequency),
			formatFloat(l.Distance),
			formatFloat(l.Z),
			formatFloat(l.MSODP),
			formatFloat(l.MSODPAdj),
			strconv.FormatBool(l.MSODOutlier),
			formatFloat(l.MSRP),
			formatFloat(l.MSRPAdj),
			strconv.FormatBool(l.MSROutlier),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Options selects what WriteAll produces.
type Options struct {
	// Title of the HTML page; defaults to the dataset name.
	Title string
	// Plots enables the PNG plots.
	Plots bool
	// Alpha draws the z threshold on the z-score plot.
	Alpha float64
}

// WriteAll writes loci.tsv, report.json, report.html and, if requested, the
// PNG plots into dir. It returns the written paths.
func WriteAll(fsys fsutil.FileSystem, dir string, rep *analysis.Report, o Options) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	var written []string

	var tsv bytes.Buffer
	if err := WriteTSV(&tsv, rep.Loci); err != nil {
		return nil, fmt.Errorf("format table: %w", err)
	}
	path := filepath.Join(dir, "loci.tsv")
	if err := fsys.WriteFile(path, tsv.Bytes(), 0o644); err != nil {
		return nil, err
	}
	written = append(written, path)

	js, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return written, fmt.Errorf("encode report: %w", err)
	}
	path = filepath.Join(dir, "report.json")
	if err := fsys.WriteFile(path, js, 0o644); err != nil {
		return written, err
	}
	written = append(written, path)

	title := o.Title
	if title == "" {
		title = rep.Source
	}
	page, err := HTML(FromReport(rep, title))
	if err != nil {
		return written, err
	}
	path = filepath.Join(dir, "report.html")
	if err := fsys.WriteFile(path, page, 0o644); err != nil {
		return written, err
	}
	written = append(written, path)

	if o.Plots {
		pngs, err := WritePlots(fsys, dir, rep, o.Alpha)
		written = append(written, pngs...)
		if err != nil {
			return written, err
		}
	}
	monitoring.Logf("wrote %d report files to %s", len(written), dir)
	return written, nil
}
