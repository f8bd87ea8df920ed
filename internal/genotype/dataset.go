// Package genotype loads individual genotype tables with spatial coordinates
// and a habitat label, the input of the Moran spectral analyses.
//
// The expected CSV layout has a header row followed by one row per
// individual:
//
//	x,y,habitat,locus_1,locus_2,...
//
// Columns 1-2 are numeric coordinates, column 3 is a categorical habitat
// label, and the remaining columns are allele counts (0, 1 or 2).
package genotype

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrMissingValue is returned when a genotype is NA or empty and
	// imputation was not requested.
	ErrMissingValue = errors.New("missing genotype")

	// ErrInvalidCount is returned for allele counts outside {0, 1, 2}.
	ErrInvalidCount = errors.New("allele count must be 0, 1 or 2")

	// ErrConstantPredictor is returned when a habitat indicator has no
	// variation and so no defined correlation with any spatial basis.
	ErrConstantPredictor = errors.New("habitat indicator is constant")
)

// Site is one sampled individual's location and habitat label.
type Site struct {
	X       float64
	Y       float64
	Habitat string
}

// Dataset is a genotype matrix aligned with sample locations.
type Dataset struct {
	Sites []Site
	// Loci names, one per column of Counts.
	Loci []string
	// Habitats lists distinct habitat labels in order of first appearance.
	Habitats []string
	// Counts is individuals × loci.
	Counts *mat.Dense
	// Imputed counts genotypes that were filled with the locus mean.
	Imputed int
}

// N returns the number of individuals.
func (d *Dataset) N() int { return len(d.Sites) }

// NumLoci returns the number of loci.
func (d *Dataset) NumLoci() int { return len(d.Loci) }

// Coordinates returns the n × 2 matrix of site coordinates.
func (d *Dataset) Coordinates() *mat.Dense {
	coords := mat.NewDense(len(d.Sites), 2, nil)
	for i, s := range d.Sites {
		coords.Set(i, 0, s.X)
		coords.Set(i, 1, s.Y)
	}
	return coords
}

// HabitatIndicator codes the habitat label as 1 where it equals level and 0
// elsewhere. An empty level selects the first habitat seen in the file.
func (d *Dataset) HabitatIndicator(level string) ([]float64, error) {
	if len(d.Habitats) == 0 {
		return nil, fmt.Errorf("dataset has no habitat labels")
	}
	if level == "" {
		level = d.Habitats[0]
	}
	known := false
	for _, h := range d.Habitats {
		if h == level {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown habitat level %q (have %v)", level, d.Habitats)
	}
	if len(d.Habitats) < 2 {
		return nil, fmt.Errorf("%w: only %q present", ErrConstantPredictor, level)
	}

	out := make([]float64, len(d.Sites))
	for i, s := range d.Sites {
		if s.Habitat == level {
			out[i] = 1
		}
	}
	return out, nil
}

// AlleleFrequencies returns the frequency of the counted allele per locus.
func (d *Dataset) AlleleFrequencies() []float64 {
	_, m := d.Counts.Dims()
	freqs := make([]float64, m)
	col := make([]float64, d.N())
	for j := 0; j < m; j++ {
		mat.Col(col, j, d.Counts)
		freqs[j] = stat.Mean(col, nil) / 2
	}
	return freqs
}

// DropMonomorphic removes loci without variation, whose correlation with
// any basis vector is undefined, and returns their names.
func (d *Dataset) DropMonomorphic() []string {
	n, m := d.Counts.Dims()
	col := make([]float64, n)
	var keep []int
	var dropped []string
	for j := 0; j < m; j++ {
		mat.Col(col, j, d.Counts)
		if stat.Variance(col, nil) > 0 {
			keep = append(keep, j)
		} else {
			dropped = append(dropped, d.Loci[j])
		}
	}
	if len(dropped) == 0 {
		return nil
	}

	loci := make([]string, len(keep))
	var counts *mat.Dense
	if len(keep) > 0 {
		counts = mat.NewDense(n, len(keep), nil)
		for k, j := range keep {
			mat.Col(col, j, d.Counts)
			counts.SetCol(k, col)
			loci[k] = d.Loci[j]
		}
	} else {
		counts = &mat.Dense{}
	}
	d.Loci = loci
	d.Counts = counts
	return dropped
}
