package msr

import (
	"fmt"
	"math"
	"sort"
)

// Multiple-testing corrections accepted by Adjust.
const (
	None       = "none"
	Bonferroni = "bonferroni"
	BH         = "bh"
)

// Adjust corrects a family of p-values for multiple comparisons:
//
//	none        unchanged
//	bonferroni  min(1, m·p)
//	bh          Benjamini-Hochberg step-up false discovery rate
//
// The input is not modified.
func Adjust(p []float64, method string) ([]float64, error) {
	m := len(p)
	out := make([]float64, m)
	switch method {
	case None, "":
		copy(out, p)
	case Bonferroni:
		for i, v := range p {
			out[i] = math.Min(1, v*float64(m))
		}
	case BH:
		order := make([]int, m)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

		running := 1.0
		for rank := m; rank >= 1; rank-- {
			i := order[rank-1]
			running = math.Min(running, p[i]*float64(m)/float64(rank))
			out[i] = running
		}
	default:
		return nil, fmt.Errorf("unknown correction %q", method)
	}
	return out, nil
}
