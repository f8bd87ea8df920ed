package spatial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Weighting schemes accepted by Weights.
const (
	Binary  = "binary"
	Inverse = "inverse"
	Linear  = "linear"
)

// ErrNoEdges is returned when a graph has no edges to weight.
var ErrNoEdges = errors.New("neighbour graph has no edges")

// Weights builds the symmetric n × n spatial weights matrix of gr:
//
//	binary   w = 1
//	inverse  w = 1 / d^alpha
//	linear   w = 1 - (d / dmax)^alpha, dmax the longest edge
//
// The diagonal is zero and no row standardisation is applied, so the result
// stays symmetric.
func Weights(gr *Graph, scheme string, alpha float64) (*mat.SymDense, error) {
	edges := gr.Edges()
	if len(edges) == 0 {
		return nil, ErrNoEdges
	}
	if scheme != Binary && alpha <= 0 {
		return nil, fmt.Errorf("alpha must be positive, got %g", alpha)
	}

	dmax := 0.0
	for _, e := range edges {
		dmax = math.Max(dmax, e.Dist)
	}

	w := mat.NewSymDense(gr.N(), nil)
	for _, e := range edges {
		var v float64
		switch scheme {
		case Binary:
			v = 1
		case Inverse:
			if e.Dist == 0 {
				return nil, fmt.Errorf("sites %d and %d share a location; inverse weights undefined", e.I, e.J)
			}
			v = 1 / math.Pow(e.Dist, alpha)
		case Linear:
			if dmax == 0 {
				return nil, fmt.Errorf("all neighbours share a location; linear weights undefined")
			}
			v = 1 - math.Pow(e.Dist/dmax, alpha)
		default:
			return nil, fmt.Errorf("unknown weighting scheme %q", scheme)
		}
		w.SetSym(e.I, e.J, v)
	}
	return w, nil
}
