// Package spatial builds neighbour graphs over sample locations and turns
// them into the symmetric spatial weights matrix from which Moran eigenvector
// maps are derived.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
)

// ErrTooFewSites is returned when fewer than two sites are given.
var ErrTooFewSites = errors.New("need at least two sites")

// Edge is an undirected link between sites I < J at distance Dist.
type Edge struct {
	I, J int
	Dist float64
}

// Graph is an undirected neighbour graph over n sites. Edge weights are the
// Euclidean distances between the linked sites.
type Graph struct {
	n int
	g *simple.WeightedUndirectedGraph
}

func newGraph(n int) *Graph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	return &Graph{n: n, g: g}
}

func (gr *Graph) link(i, j int, d float64) {
	if i == j {
		return
	}
	gr.g.SetWeightedEdge(gr.g.NewWeightedEdge(simple.Node(i), simple.Node(j), d))
}

// N returns the number of sites.
func (gr *Graph) N() int { return gr.n }

// Edges returns the edges ordered by (I, J).
func (gr *Graph) Edges() []Edge {
	var edges []Edge
	it := gr.g.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		i, j := int(e.From().ID()), int(e.To().ID())
		if i > j {
			i, j = j, i
		}
		edges = append(edges, Edge{I: i, J: j, Dist: e.Weight()})
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].I != edges[b].I {
			return edges[a].I < edges[b].I
		}
		return edges[a].J < edges[b].J
	})
	return edges
}

// HasEdge reports whether sites i and j are neighbours.
func (gr *Graph) HasEdge(i, j int) bool {
	return gr.g.HasEdgeBetween(int64(i), int64(j))
}

// Degree returns the number of neighbours of site i.
func (gr *Graph) Degree(i int) int {
	return gr.g.From(int64(i)).Len()
}

// Components returns the number of connected components.
func (gr *Graph) Components() int {
	return len(topo.ConnectedComponents(gr.g))
}

// Connected reports whether every site is reachable from every other.
func (gr *Graph) Connected() bool {
	return gr.Components() == 1
}

func checkCoords(coords mat.Matrix) (int, error) {
	n, c := coords.Dims()
	if c != 2 {
		return 0, fmt.Errorf("coordinates must have 2 columns, got %d", c)
	}
	if n < 2 {
		return 0, ErrTooFewSites
	}
	return n, nil
}

func dist(coords mat.Matrix, i, j int) float64 {
	return math.Hypot(coords.At(i, 0)-coords.At(j, 0), coords.At(i, 1)-coords.At(j, 1))
}

// MinimumSpanningThreshold returns the length of the longest edge of the
// Euclidean minimum spanning tree. It is the smallest distance threshold that
// keeps a distance-based graph connected.
func MinimumSpanningThreshold(coords mat.Matrix) (float64, error) {
	n, err := checkCoords(coords)
	if err != nil {
		return 0, err
	}
	complete := newGraph(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			complete.link(i, j, dist(coords, i, j))
		}
	}
	tree := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Prim(tree, complete.g)

	longest := 0.0
	it := tree.WeightedEdges()
	for it.Next() {
		longest = math.Max(longest, it.WeightedEdge().Weight())
	}
	return longest, nil
}

// DistanceGraph links every pair of sites no further apart than threshold.
// A threshold <= 0 selects MinimumSpanningThreshold.
func DistanceGraph(coords mat.Matrix, threshold float64) (*Graph, error) {
	n, err := checkCoords(coords)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		if threshold, err = MinimumSpanningThreshold(coords); err != nil {
			return nil, err
		}
	}
	gr := newGraph(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := dist(coords, i, j); d <= threshold {
				gr.link(i, j, d)
			}
		}
	}
	return gr, nil
}

// gabrielTolerance is the relative slack on the squared radius of the
// diameter circle.
const gabrielTolerance = 1e-12

// GabrielGraph links i and j when no other site lies strictly inside the
// circle whose diameter is the segment ij.
func GabrielGraph(coords mat.Matrix) (*Graph, error) {
	n, err := checkCoords(coords)
	if err != nil {
		return nil, err
	}
	gr := newGraph(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			mx := (coords.At(i, 0) + coords.At(j, 0)) / 2
			my := (coords.At(i, 1) + coords.At(j, 1)) / 2
			ex, ey := coords.At(i, 0)-coords.At(j, 0), coords.At(i, 1)-coords.At(j, 1)
			r2 := (ex*ex + ey*ey) / 4
			d := dist(coords, i, j)

			// cocircular sites must not block the edge
			limit := r2 * (1 - gabrielTolerance)
			blocked := false
			for k := 0; k < n && !blocked; k++ {
				if k == i || k == j {
					continue
				}
				dx, dy := coords.At(k, 0)-mx, coords.At(k, 1)-my
				blocked = dx*dx+dy*dy < limit
			}
			if !blocked {
				gr.link(i, j, d)
			}
		}
	}
	return gr, nil
}

// KNearestGraph links each site to its k nearest neighbours; the relation is
// symmetrised so i~j when either lists the other.
func KNearestGraph(coords mat.Matrix, k int) (*Graph, error) {
	n, err := checkCoords(coords)
	if err != nil {
		return nil, err
	}
	if k < 1 || k >= n {
		return nil, fmt.Errorf("k must be in [1, %d], got %d", n-1, k)
	}

	gr := newGraph(n)
	order := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		order = order[:0]
		for j := 0; j < n; j++ {
			if j != i {
				order = append(order, j)
			}
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dist(coords, i, order[a]) < dist(coords, i, order[b])
		})
		for _, j := range order[:k] {
			gr.link(i, j, dist(coords, i, j))
		}
	}
	return gr, nil
}
