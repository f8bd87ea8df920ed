package genotype

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/msod/internal/fsutil"
)

const (
	colX = iota
	colY
	colHabitat
	firstLocusCol
)

// minIndividuals is the smallest sample for which a spatial basis exists.
const minIndividuals = 3

// ReadOptions controls CSV parsing.
type ReadOptions struct {
	// ImputeMissing replaces NA/empty genotypes with the locus mean instead
	// of failing.
	ImputeMissing bool
}

// LoadFile reads a genotype CSV through fsys.
func LoadFile(fsys fsutil.FileSystem, path string, opts ReadOptions) (*Dataset, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genotype file: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV parses a genotype table. See the package documentation for the
// column layout.
func ReadCSV(r io.Reader, opts ReadOptions) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty genotype file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) <= firstLocusCol {
		return nil, fmt.Errorf("header has %d columns, need x, y, habitat and at least one locus", len(header))
	}
	loci := make([]string, len(header)-firstLocusCol)
	for i, name := range header[firstLocusCol:] {
		loci[i] = strings.TrimSpace(name)
	}

	ds := &Dataset{Loci: loci}
	seenHabitat := make(map[string]bool)
	var values []float64

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		x, err := parseCoordinate(rec[colX])
		if err != nil {
			return nil, fmt.Errorf("line %d: x: %w", line, err)
		}
		y, err := parseCoordinate(rec[colY])
		if err != nil {
			return nil, fmt.Errorf("line %d: y: %w", line, err)
		}
		habitat := strings.TrimSpace(rec[colHabitat])
		if !seenHabitat[habitat] {
			seenHabitat[habitat] = true
			ds.Habitats = append(ds.Habitats, habitat)
		}
		ds.Sites = append(ds.Sites, Site{X: x, Y: y, Habitat: habitat})

		for j, raw := range rec[firstLocusCol:] {
			v, err := parseCount(raw)
			if errors.Is(err, ErrMissingValue) && opts.ImputeMissing {
				v = math.NaN()
			} else if err != nil {
				return nil, fmt.Errorf("line %d, locus %q: %w", line, loci[j], err)
			}
			values = append(values, v)
		}
	}

	if len(ds.Sites) < minIndividuals {
		return nil, fmt.Errorf("need at least %d individuals, got %d", minIndividuals, len(ds.Sites))
	}

	ds.Counts = mat.NewDense(len(ds.Sites), len(loci), values)
	if opts.ImputeMissing {
		ds.Imputed = imputeColumnMeans(ds.Counts)
	}
	return ds, nil
}

func parseCoordinate(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("coordinate must be finite, got %q", raw)
	}
	return v, nil
}

func parseCount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "NA") {
		return 0, ErrMissingValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, raw)
	}
	if v != 0 && v != 1 && v != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, raw)
	}
	return v, nil
}

// imputeColumnMeans replaces NaN cells with the mean of the observed values
// in the same column and returns how many cells were filled. A column with no
// observed values is filled with zeros.
func imputeColumnMeans(m *mat.Dense) int {
	rows, cols := m.Dims()
	filled := 0
	for j := 0; j < cols; j++ {
		var sum float64
		var observed int
		for i := 0; i < rows; i++ {
			if v := m.At(i, j); !math.IsNaN(v) {
				sum += v
				observed++
			}
		}
		mean := 0.0
		if observed > 0 {
			mean = sum / float64(observed)
		}
		for i := 0; i < rows; i++ {
			if math.IsNaN(m.At(i, j)) {
				m.Set(i, j, mean)
				filled++
			}
		}
	}
	return filled
}
