// Package testutil provides shared test fixtures.
//
// The genotype fixture is a jittered square grid split into two habitats,
// with one locus that tracks the habitat, two that vary without spatial
// pattern and one that is monomorphic.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// GenotypeLoci are the locus columns written by GenotypeCSV.
var GenotypeLoci = []string{"l1", "l2", "l3", "mono"}

// GenotypeCSV returns a side × side individuals table in the
// x,y,habitat,loci... layout. Columns left of the middle are "forest",
// the rest "meadow"; l1 is 2 in forest and 0 elsewhere, and mono is 1
// everywhere.
func GenotypeCSV(side int) string {
	var b strings.Builder
	b.WriteString("x,y,habitat," + strings.Join(GenotypeLoci, ",") + "\n")
	for i := 0; i < side*side; i++ {
		col, row := i%side, i/side
		x := float64(col) + 0.05*float64((i*7)%5)
		y := float64(row) + 0.05*float64((i*3)%4)
		habitat, l1 := "meadow", 0
		if col < side/2 {
			habitat, l1 = "forest", 2
		}
		fmt.Fprintf(&b, "%.2f,%.2f,%s,%d,%d,%d,1\n", x, y, habitat, l1, (i*i+i+1)%3, (i*i+2*i+2)%3)
	}
	return b.String()
}

// WriteGenotypeCSV writes GenotypeCSV(side) to genotypes.csv in a fresh
// temp directory and returns its path.
func WriteGenotypeCSV(t *testing.T, side int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genotypes.csv")
	if err := os.WriteFile(path, []byte(GenotypeCSV(side)), 0o644); err != nil {
		t.Fatalf("write genotype fixture: %v", err)
	}
	return path
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// ServeRequest sends a body-less request through h and returns the recorded
// response.
func ServeRequest(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
