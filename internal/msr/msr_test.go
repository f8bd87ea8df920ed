package msr

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// randomCorrelations fills an r × c matrix with values in (-1, 1).
func randomCorrelations(r, c int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 1))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 2*rng.Float64() - 1
	}
	return mat.NewDense(r, c, data)
}

func TestPValuesBoundedAndQuantized(t *testing.T) {
	t.Parallel()

	r := randomCorrelations(40, 12, 1)
	x := randomCorrelations(2, 12, 2)

	for _, n := range []int{1, 9, 99, 250} {
		res, err := Test(context.Background(), r, x, Options{Permutations: n, Seed: 7})
		require.NoError(t, err)
		assert.Equal(t, n, res.Permutations)

		rows, cols := res.PValues.Dims()
		require.Equal(t, 40, rows)
		require.Equal(t, 2, cols)

		lower := 1 / float64(n+1)
		for i := 0; i < rows; i++ {
			for q := 0; q < cols; q++ {
				p := res.PValues.At(i, q)
				assert.GreaterOrEqual(t, p, lower)
				assert.LessOrEqual(t, p, 1.0)

				steps := p * float64(n+1)
				assert.InDelta(t, math.Round(steps), steps, 1e-9, "p-values are multiples of 1/(N+1)")
			}
		}
	}
}

func TestNegatedPredictorGivesSameResult(t *testing.T) {
	t.Parallel()

	r := randomCorrelations(25, 10, 3)
	x := randomCorrelations(1, 10, 4)
	var neg mat.Dense
	neg.Scale(-1, x)

	opts := Options{Permutations: 199, Seed: 11}
	a, err := Test(context.Background(), r, x, opts)
	require.NoError(t, err)
	b, err := Test(context.Background(), r, &neg, opts)
	require.NoError(t, err)

	assert.True(t, mat.Equal(a.PValues, b.PValues))
	assert.True(t, mat.Equal(a.Observed, b.Observed))
}

func TestSurrogateMagnitudesInvariantUnderNegation(t *testing.T) {
	t.Parallel()

	const k, n = 8, 50
	x := mat.Row(nil, 0, randomCorrelations(1, k, 5))
	negX := make([]float64, k)
	floats.ScaleTo(negX, -1, x)
	r := mat.Row(nil, 0, randomCorrelations(1, k, 6))

	flips := SignFlips(k, n, NewRand(99))
	for s := 0; s < n; s++ {
		f := mat.Row(nil, s, flips)
		a := make([]float64, k)
		b := make([]float64, k)
		floats.MulTo(a, f, x)
		floats.MulTo(b, f, negX)
		assert.Equal(t, math.Abs(floats.Dot(r, a)), math.Abs(floats.Dot(r, b)))
	}
}

func TestObservedMaximumGivesMinimumPValue(t *testing.T) {
	t.Parallel()

	const k, n = 30, 99
	const seed = 2024
	x := randomCorrelations(1, k, 8)

	// no surrogate may reproduce ±x exactly
	flips := SignFlips(k, n, NewRand(seed))
	for s := 0; s < n; s++ {
		row := mat.Row(nil, s, flips)
		sum := floats.Sum(row)
		require.NotEqual(t, float64(k), math.Abs(sum), "draw %d is all one sign", s)
	}

	// a response equal to the predictor is maximally aligned with it
	p, err := TestVector(context.Background(), x, mat.Row(nil, 0, x), Options{Permutations: n, Seed: seed})
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, 1/float64(n+1), p[0])
}

func TestNullPValuesAreCentred(t *testing.T) {
	t.Parallel()

	r := randomCorrelations(500, 20, 9)
	x := randomCorrelations(1, 20, 10)

	res, err := Test(context.Background(), r, x, Options{Permutations: 199, Seed: 12})
	require.NoError(t, err)

	mean := floats.Sum(res.Column(0)) / 500
	assert.InDelta(t, 0.5, mean, 0.1)
}

func TestResultIndependentOfWorkers(t *testing.T) {
	t.Parallel()

	r := randomCorrelations(300, 15, 13)
	x := randomCorrelations(3, 15, 14)

	one, err := Test(context.Background(), r, x, Options{Permutations: 99, Seed: 5, Workers: 1})
	require.NoError(t, err)
	many, err := Test(context.Background(), r, x, Options{Permutations: 99, Seed: 5, Workers: 8})
	require.NoError(t, err)

	assert.True(t, mat.Equal(one.PValues, many.PValues))
	assert.Equal(t, uint64(5), many.Seed)
}

func TestSeedZeroPicksSeed(t *testing.T) {
	t.Parallel()

	res, err := Test(context.Background(), randomCorrelations(3, 4, 1), randomCorrelations(1, 4, 2), Options{Permutations: 9})
	require.NoError(t, err)
	assert.NotZero(t, res.Seed)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	r := randomCorrelations(5, 4, 1)

	_, err := Test(context.Background(), r, randomCorrelations(1, 3, 2), Options{Permutations: 9})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Test(context.Background(), r, randomCorrelations(1, 4, 2), Options{Permutations: 0})
	assert.ErrorContains(t, err, "permutations")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Test(ctx, r, randomCorrelations(1, 4, 2), Options{Permutations: 9, Seed: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSignFlips(t *testing.T) {
	t.Parallel()

	flips := SignFlips(6, 2000, NewRand(1))
	rows, cols := flips.Dims()
	require.Equal(t, 2000, rows)
	require.Equal(t, 6, cols)

	negatives := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := flips.At(i, j)
			require.True(t, v == 1 || v == -1)
			if v < 0 {
				negatives++
			}
		}
	}
	assert.InDelta(t, 0.5, float64(negatives)/float64(rows*cols), 0.03)

	assert.True(t, mat.Equal(flips, SignFlips(6, 2000, NewRand(1))), "same seed, same draws")
}
