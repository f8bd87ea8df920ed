// Package mem computes Moran eigenvector maps (MEMs): the orthogonal spatial
// basis obtained by eigendecomposition of a doubly centred spatial weights
// matrix. MEMs with large positive eigenvalues describe broad-scale positive
// autocorrelation; those near zero describe fine-scale structure.
package mem

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoSpatialStructure is returned when the weights carry no usable
	// spatial structure: all-zero weights, or no eigenvalue of the requested
	// sign beyond the tolerance.
	ErrNoSpatialStructure = errors.New("no spatial structure")

	// ErrEigenFailed is returned when the eigendecomposition does not converge.
	ErrEigenFailed = errors.New("eigendecomposition failed")
)

// Which side of the spectrum to keep.
const (
	Positive = "positive"
	Negative = "negative"
	All      = "all"
)

// Options controls basis construction.
type Options struct {
	// Autocor selects Positive (default), Negative or All eigenvectors.
	Autocor string
	// Tolerance is relative to the largest absolute eigenvalue. Eigenvalues
	// with |λ| <= Tolerance·max|λ| are treated as zero. Defaults to 1e-8.
	Tolerance float64
}

// Basis is a set of MEMs over n sites.
type Basis struct {
	// Vectors is n × k. Each column has zero mean and sum of squares n.
	Vectors *mat.Dense
	// Eigenvalues of the doubly centred weights, in decreasing order.
	Eigenvalues []float64
	// MoranI is the Moran's I of each MEM, n/S0 · λ.
	MoranI []float64
	// S0 is the sum of all weights.
	S0 float64
}

// K returns the number of basis vectors.
func (b *Basis) K() int { return len(b.Eigenvalues) }

// Vector returns a copy of MEM j.
func (b *Basis) Vector(j int) []float64 {
	n, _ := b.Vectors.Dims()
	return mat.Col(make([]float64, n), j, b.Vectors)
}

// Build computes the MEM basis of the symmetric weights matrix w.
func Build(w mat.Symmetric, opts Options) (*Basis, error) {
	if opts.Autocor == "" {
		opts.Autocor = Positive
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-8
	}
	switch opts.Autocor {
	case Positive, Negative, All:
	default:
		return nil, fmt.Errorf("unknown autocorrelation selection %q", opts.Autocor)
	}

	n := w.SymmetricDim()
	if n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 sites, got %d", ErrNoSpatialStructure, n)
	}

	omega, s0 := doubleCentre(w)
	if s0 == 0 {
		return nil, fmt.Errorf("%w: all weights are zero", ErrNoSpatialStructure)
	}

	var es mat.EigenSym
	if ok := es.Factorize(omega, true); !ok {
		return nil, ErrEigenFailed
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	maxAbs := 0.0
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	threshold := opts.Tolerance * maxAbs

	var keep []int
	for j, v := range values {
		switch {
		case v > threshold && opts.Autocor != Negative:
			keep = append(keep, j)
		case v < -threshold && opts.Autocor != Positive:
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: no %s eigenvalues", ErrNoSpatialStructure, opts.Autocor)
	}
	sort.SliceStable(keep, func(a, b int) bool { return values[keep[a]] > values[keep[b]] })

	basis := &Basis{
		Vectors:     mat.NewDense(n, len(keep), nil),
		Eigenvalues: make([]float64, len(keep)),
		MoranI:      make([]float64, len(keep)),
		S0:          s0,
	}
	scale := math.Sqrt(float64(n))
	col := make([]float64, n)
	for k, j := range keep {
		mat.Col(col, j, &vecs)
		orient(col)
		floats.Scale(scale, col)
		basis.Vectors.SetCol(k, col)
		basis.Eigenvalues[k] = values[j]
		basis.MoranI[k] = float64(n) / s0 * values[j]
	}
	return basis, nil
}

// doubleCentre returns HWH with H = I - 11ᵀ/n, and the sum of all weights.
func doubleCentre(w mat.Symmetric) (*mat.SymDense, float64) {
	n := w.SymmetricDim()
	rowMeans := make([]float64, n)
	s0 := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMeans[i] += w.At(i, j)
		}
		s0 += rowMeans[i]
		rowMeans[i] /= float64(n)
	}
	grand := s0 / float64(n*n)

	omega := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			omega.SetSym(i, j, w.At(i, j)-rowMeans[i]-rowMeans[j]+grand)
		}
	}
	return omega, s0
}

// orient flips v so its first non-negligible element is positive, making the
// basis deterministic across LAPACK implementations.
func orient(v []float64) {
	for _, x := range v {
		if math.Abs(x) > 1e-12 {
			if x < 0 {
				floats.Scale(-1, v)
			}
			return
		}
	}
}

// MoranI returns Moran's I of y under the weights w:
//
//	I = n/S0 · zᵀWz / zᵀz,  z = y - mean(y)
func MoranI(y []float64, w mat.Symmetric) (float64, error) {
	n := w.SymmetricDim()
	if len(y) != n {
		return 0, fmt.Errorf("variable has %d values, weights are %d×%d", len(y), n, n)
	}
	z := make([]float64, n)
	copy(z, y)
	floats.AddConst(-floats.Sum(z)/float64(n), z)

	zz := floats.Dot(z, z)
	if zz == 0 {
		return 0, fmt.Errorf("variable is constant")
	}
	zv := mat.NewVecDense(n, z)
	var wz mat.VecDense
	wz.MulVec(w, zv)

	s0 := mat.Sum(w)
	if s0 == 0 {
		return 0, fmt.Errorf("%w: all weights are zero", ErrNoSpatialStructure)
	}
	return float64(n) / s0 * mat.Dot(zv, &wz) / zz, nil
}
