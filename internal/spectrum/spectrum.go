// Package spectrum computes Moran power spectra and Moran spectral outlier
// detection (MSOD) scores.
//
// The power spectrum of a locus is its squared correlation with each MEM, in
// basis order. MSOD compares each locus' cumulative spectrum with the mean
// cumulative spectrum over all loci; loci whose spatial signature departs
// strongly from the genome-wide pattern are candidate outliers.
package spectrum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/msod/internal/msr"
)

// Correlations returns the Pearson correlation of every column of y (n × m)
// with every column of basis (n × k) as an m × k matrix.
func Correlations(y, basis mat.Matrix) (*mat.Dense, error) {
	n, m := y.Dims()
	nb, k := basis.Dims()
	if n != nb {
		return nil, fmt.Errorf("variables have %d rows, basis has %d", n, nb)
	}

	cols := make([][]float64, k)
	for j := range cols {
		cols[j] = mat.Col(nil, j, basis)
	}

	out := mat.NewDense(m, k, nil)
	col := make([]float64, n)
	for i := 0; i < m; i++ {
		mat.Col(col, i, y)
		if stat.Variance(col, nil) == 0 {
			return nil, fmt.Errorf("variable %d has zero variance", i)
		}
		for j := 0; j < k; j++ {
			out.Set(i, j, stat.Correlation(col, cols[j], nil))
		}
	}
	return out, nil
}

// Power squares r element-wise.
func Power(r mat.Matrix) *mat.Dense {
	var p mat.Dense
	p.MulElem(r, r)
	return &p
}

// MeanSpectrum averages the rows of power.
func MeanSpectrum(power mat.Matrix) []float64 {
	m, k := power.Dims()
	mean := make([]float64, k)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			mean[j] += power.At(i, j)
		}
	}
	floats.Scale(1/float64(m), mean)
	return mean
}

// Score is the MSOD result for one locus.
type Score struct {
	// Distance between the locus' cumulative spectrum and the mean one.
	Distance float64
	// Z is Distance standardised over loci.
	Z float64
	// P is the upper-tail standard normal probability of Z.
	P float64
	// PAdjusted is P after multiple-testing correction; set by Flag.
	PAdjusted float64
	// Outlier is set by Flag.
	Outlier bool
}

// OutlierScores computes the MSOD distance, z-score and p-value of every row
// of power. With fewer than two loci, or when all distances are equal, z is
// zero and p is one half.
func OutlierScores(power mat.Matrix) []Score {
	m, k := power.Dims()
	mean := MeanSpectrum(power)
	meanCum := make([]float64, k)
	floats.CumSum(meanCum, mean)

	dists := make([]float64, m)
	row := make([]float64, k)
	cum := make([]float64, k)
	for i := 0; i < m; i++ {
		mat.Row(row, i, power)
		floats.CumSum(cum, row)
		dists[i] = floats.Distance(cum, meanCum, 2)
	}

	mu, sd := 0.0, 0.0
	if m > 1 {
		mu, sd = stat.MeanStdDev(dists, nil)
	}
	scores := make([]Score, m)
	for i, d := range dists {
		z := 0.0
		if sd > 0 && !math.IsNaN(sd) {
			z = (d - mu) / sd
		}
		scores[i] = Score{Distance: d, Z: z, P: distuv.UnitNormal.Survival(z)}
	}
	return scores
}

// Flag adjusts the MSOD p-values with the given correction and marks loci
// whose adjusted p-value is below alpha.
func Flag(scores []Score, alpha float64, correction string) error {
	p := make([]float64, len(scores))
	for i, s := range scores {
		p[i] = s.P
	}
	adj, err := msr.Adjust(p, correction)
	if err != nil {
		return err
	}
	for i := range scores {
		scores[i].PAdjusted = adj[i]
		scores[i].Outlier = adj[i] < alpha
	}
	return nil
}
