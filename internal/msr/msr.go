// Package msr implements Moran spectral randomization (MSR): a permutation
// test of the association between response and predictor variables that
// preserves the spatial structure of the predictor.
//
// Both sides are expressed as correlations with a common MEM basis. A
// surrogate predictor with the same power spectrum is obtained by negating
// each basis coefficient independently with probability one half; the
// response's alignment with the true predictor is then ranked among its
// alignments with the surrogates.
package msr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when the response and predictor
// correlations are not expressed over the same number of basis vectors.
var ErrDimensionMismatch = errors.New("response and predictor basis dimensions differ")

// rowsPerTask bounds the work handed to a single goroutine.
const rowsPerTask = 64

// Options controls the randomization.
type Options struct {
	// Permutations is the number of sign-randomized surrogates N.
	Permutations int
	// Seed makes the sign draws reproducible; 0 seeds from the clock.
	Seed uint64
	// Workers bounds the number of goroutines; <= 0 uses GOMAXPROCS.
	Workers int
}

// Result holds the outcome of Test.
type Result struct {
	// PValues is m × p: one empirical p-value per response row and
	// predictor.
	PValues *mat.Dense
	// Observed is m × p: |R·x| for the true predictors.
	Observed *mat.Dense
	// Permutations is N; every p-value is a multiple of 1/(N+1).
	Permutations int
	// Seed is the seed actually used for the sign draws.
	Seed uint64
}

// Column returns the p-values for predictor q.
func (r *Result) Column(q int) []float64 {
	m, _ := r.PValues.Dims()
	return mat.Col(make([]float64, m), q, r.PValues)
}

// NewRand returns the generator used for the sign draws of a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SignFlips draws an n × k matrix of independent ±1 entries, each -1 with
// probability one half.
func SignFlips(k, n int, rng *rand.Rand) *mat.Dense {
	signs := make([]float64, n*k)
	for i := range signs {
		if rng.IntN(2) == 0 {
			signs[i] = -1
		} else {
			signs[i] = 1
		}
	}
	return mat.NewDense(n, k, signs)
}

// Test runs the randomization for response correlations r (m × k) against
// predictor correlations x (p × k).
//
// For each response row i and predictor q the statistic is |r_i · x_q|. The
// p-value is the fraction of the N+1 values, observed plus surrogates, that
// are greater than or equal to the observed one, so it lies in
// [1/(N+1), 1]. Ties count as extreme. No multiple-testing correction is
// applied; see Adjust.
//
// Rows are evaluated concurrently; the result depends only on the inputs and
// the seed, not on the worker count.
func Test(ctx context.Context, r, x mat.Matrix, opts Options) (*Result, error) {
	m, k := r.Dims()
	p, kx := x.Dims()
	if k != kx {
		return nil, fmt.Errorf("%w: response has %d, predictor has %d", ErrDimensionMismatch, k, kx)
	}
	if opts.Permutations < 1 {
		return nil, fmt.Errorf("permutations must be at least 1, got %d", opts.Permutations)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	n := opts.Permutations
	flips := SignFlips(k, n, NewRand(seed))

	// surrogates[q] holds the N signed copies of predictor q, row-major.
	surrogates := make([][][]float64, p)
	predictors := make([][]float64, p)
	for q := 0; q < p; q++ {
		predictors[q] = mat.Row(nil, q, x)
		surrogates[q] = make([][]float64, n)
		for s := 0; s < n; s++ {
			row := mat.Row(nil, s, flips)
			floats.Mul(row, predictors[q])
			surrogates[q][s] = row
		}
	}

	res := &Result{
		PValues:      mat.NewDense(m, p, nil),
		Observed:     mat.NewDense(m, p, nil),
		Permutations: n,
		Seed:         seed,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < m; lo += rowsPerTask {
		hi := min(lo+rowsPerTask, m)
		g.Go(func() error {
			ri := make([]float64, k)
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				mat.Row(ri, i, r)
				for q := 0; q < p; q++ {
					obs := math.Abs(floats.Dot(ri, predictors[q]))
					extreme := 1
					for _, sur := range surrogates[q] {
						if math.Abs(floats.Dot(ri, sur)) >= obs {
							extreme++
						}
					}
					// each goroutine owns rows [lo, hi)
					res.Observed.Set(i, q, obs)
					res.PValues.Set(i, q, float64(extreme)/float64(n+1))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// TestVector is Test for a single predictor given as a k-vector.
func TestVector(ctx context.Context, r mat.Matrix, x []float64, opts Options) ([]float64, error) {
	res, err := Test(ctx, r, mat.NewDense(1, len(x), x), opts)
	if err != nil {
		return nil, err
	}
	return res.Column(0), nil
}
