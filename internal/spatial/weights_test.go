package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights(t *testing.T) {
	g, err := DistanceGraph(pts(0, 0, 1, 0, 3, 0), 0)
	require.NoError(t, err)

	tests := []struct {
		scheme   string
		alpha    float64
		w01, w12 float64
	}{
		{Binary, 0, 1, 1},
		{Inverse, 1, 1, 0.5},
		{Inverse, 2, 1, 0.25},
		{Linear, 1, 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			w, err := Weights(g, tt.scheme, tt.alpha)
			require.NoError(t, err)

			assert.InDelta(t, tt.w01, w.At(0, 1), 1e-12)
			assert.InDelta(t, tt.w01, w.At(1, 0), 1e-12)
			assert.InDelta(t, tt.w12, w.At(1, 2), 1e-12)
			assert.Zero(t, w.At(0, 2))
			for i := 0; i < 3; i++ {
				assert.Zero(t, w.At(i, i))
			}
		})
	}
}

func TestWeightsErrors(t *testing.T) {
	g, err := DistanceGraph(pts(0, 0, 1, 0, 3, 0), 0)
	require.NoError(t, err)

	_, err = Weights(g, "gaussian", 1)
	assert.ErrorContains(t, err, "unknown weighting")

	_, err = Weights(g, Inverse, 0)
	assert.ErrorContains(t, err, "alpha")

	empty, err := DistanceGraph(pts(0, 0, 5, 0), 1)
	require.NoError(t, err)
	_, err = Weights(empty, Binary, 1)
	assert.ErrorIs(t, err, ErrNoEdges)

	dup, err := DistanceGraph(pts(0, 0, 0, 0, 1, 0), 0)
	require.NoError(t, err)
	_, err = Weights(dup, Inverse, 1)
	assert.ErrorContains(t, err, "share a location")
}
