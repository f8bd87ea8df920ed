package spatial

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func pts(xy ...float64) *mat.Dense {
	return mat.NewDense(len(xy)/2, 2, xy)
}

func TestMinimumSpanningThreshold(t *testing.T) {
	got, err := MinimumSpanningThreshold(pts(0, 0, 1, 0, 3, 0))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-12)

	_, err = MinimumSpanningThreshold(pts(0, 0))
	assert.ErrorIs(t, err, ErrTooFewSites)

	_, err = MinimumSpanningThreshold(mat.NewDense(3, 3, nil))
	assert.ErrorContains(t, err, "2 columns")
}

func TestDistanceGraph(t *testing.T) {
	coords := pts(0, 0, 1, 0, 3, 0)

	t.Run("default threshold keeps graph connected", func(t *testing.T) {
		g, err := DistanceGraph(coords, 0)
		require.NoError(t, err)
		want := []Edge{{I: 0, J: 1, Dist: 1}, {I: 1, J: 2, Dist: 2}}
		if diff := cmp.Diff(want, g.Edges()); diff != "" {
			t.Errorf("Edges() mismatch (-want +got):\n%s", diff)
		}
		assert.True(t, g.Connected())
	})

	t.Run("explicit threshold", func(t *testing.T) {
		g, err := DistanceGraph(coords, 1.5)
		require.NoError(t, err)
		assert.Len(t, g.Edges(), 1)
		assert.False(t, g.Connected())
		assert.Equal(t, 2, g.Components())
	})
}

func TestGabrielGraph(t *testing.T) {
	g, err := GabrielGraph(pts(0, 0, 1, 0, 2, 0))
	require.NoError(t, err)

	assert.True(t, g.HasEdge(0, 1))
	assert.True(t, g.HasEdge(1, 2))
	assert.False(t, g.HasEdge(0, 2), "middle site lies inside the diameter circle")
	assert.Equal(t, 2, g.Degree(1))
	assert.Equal(t, 3, g.N())
}

func TestGabrielGraphSquareIncludesCocircularDiagonals(t *testing.T) {
	// the opposite corners sit on, not inside, the circle
	for _, side := range []float64{1, 2, 10, 0.1} {
		t.Run(fmt.Sprintf("side %g", side), func(t *testing.T) {
			g, err := GabrielGraph(pts(0, 0, side, 0, 0, side, side, side))
			require.NoError(t, err)
			assert.Len(t, g.Edges(), 6)
			assert.True(t, g.HasEdge(0, 3))
			assert.True(t, g.HasEdge(1, 2))
		})
	}
}

func TestGabrielGraphRegularGrid(t *testing.T) {
	// on a 3x3 grid every unit square contributes both diagonals
	var c []float64
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			c = append(c, float64(col)*3, float64(row)*3)
		}
	}
	g, err := GabrielGraph(pts(c...))
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 12+4*2)
	assert.True(t, g.HasEdge(0, 4))
	assert.False(t, g.HasEdge(0, 2), "site 1 lies inside the circle")
}

func TestKNearestGraph(t *testing.T) {
	g, err := KNearestGraph(pts(0, 0, 1, 0, 3, 0, 10, 0), 1)
	require.NoError(t, err)

	var pairs [][2]int
	for _, e := range g.Edges() {
		pairs = append(pairs, [2]int{e.I, e.J})
	}
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}, {2, 3}}, pairs)
	assert.True(t, g.Connected())

	clusters, err := KNearestGraph(pts(0, 0, 1, 0, 100, 0, 101, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, clusters.Components())

	_, err = KNearestGraph(pts(0, 0, 1, 0), 2)
	assert.Error(t, err)
	_, err = KNearestGraph(pts(0, 0, 1, 0), 0)
	assert.Error(t, err)
}
