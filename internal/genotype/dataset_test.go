package genotype

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/msod/internal/fsutil"
)

const sampleCSV = `x,y,habitat,L1,L2,L3
0,0,forest,0,1,2
1,0,forest,1,1,2
0,1,meadow,2,1,2
1,1,meadow,2,1,2
`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, ds.N())
	assert.Equal(t, 3, ds.NumLoci())
	assert.Equal(t, []string{"L1", "L2", "L3"}, ds.Loci)
	assert.Equal(t, []string{"forest", "meadow"}, ds.Habitats)
	assert.Equal(t, Site{X: 0, Y: 1, Habitat: "meadow"}, ds.Sites[2])
	assert.Equal(t, 2.0, ds.Counts.At(2, 0))

	coords := ds.Coordinates()
	r, c := coords.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 1.0, coords.At(3, 1))
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty genotype file"},
		{"no loci", "x,y,habitat\n0,0,a\n", "need x, y, habitat"},
		{"bad coordinate", "x,y,h,L1\nfoo,0,a,1\n0,1,a,1\n1,1,b,1\n", "x:"},
		{"infinite coordinate", "x,y,h,L1\n0,Inf,a,1\n0,1,a,1\n1,1,b,1\n", "finite"},
		{"count out of range", "x,y,h,L1\n0,0,a,3\n0,1,a,1\n1,1,b,1\n", "allele count"},
		{"count not numeric", "x,y,h,L1\n0,0,a,AA\n0,1,a,1\n1,1,b,1\n", "allele count"},
		{"missing", "x,y,h,L1\n0,0,a,NA\n0,1,a,1\n1,1,b,1\n", "missing genotype"},
		{"ragged", "x,y,h,L1\n0,0,a,1,1\n", "line 2"},
		{"too few", "x,y,h,L1\n0,0,a,1\n0,1,b,1\n", "at least 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data), ReadOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadCSVSentinels(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("x,y,h,L1\n0,0,a,\n0,1,a,1\n1,1,b,1\n"), ReadOptions{})
	assert.ErrorIs(t, err, ErrMissingValue)

	_, err = ReadCSV(strings.NewReader("x,y,h,L1\n0,0,a,0.5\n0,1,a,1\n1,1,b,1\n"), ReadOptions{})
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestReadCSVImputeMissing(t *testing.T) {
	data := "x,y,h,L1,L2\n0,0,a,NA,0\n0,1,a,1,NA\n1,1,b,2,2\n"
	ds, err := ReadCSV(strings.NewReader(data), ReadOptions{ImputeMissing: true})
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Imputed)
	assert.InDelta(t, 1.5, ds.Counts.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, ds.Counts.At(1, 1), 1e-12)
}

func TestHabitatIndicator(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), ReadOptions{})
	require.NoError(t, err)

	got, err := ds.HabitatIndicator("")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0, 0}, got)

	got, err = ds.HabitatIndicator("meadow")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 1}, got)

	_, err = ds.HabitatIndicator("desert")
	assert.ErrorContains(t, err, "unknown habitat")

	single := &Dataset{Sites: []Site{{Habitat: "a"}, {Habitat: "a"}}, Habitats: []string{"a"}}
	_, err = single.HabitatIndicator("")
	assert.ErrorIs(t, err, ErrConstantPredictor)
}

func TestDropMonomorphic(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), ReadOptions{})
	require.NoError(t, err)

	dropped := ds.DropMonomorphic()
	assert.Equal(t, []string{"L2", "L3"}, dropped)
	assert.Equal(t, []string{"L1"}, ds.Loci)

	want := mat.NewDense(4, 1, []float64{0, 1, 2, 2})
	assert.True(t, mat.Equal(want, ds.Counts))

	assert.Nil(t, ds.DropMonomorphic(), "second pass drops nothing")
}

func TestAlleleFrequencies(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), ReadOptions{})
	require.NoError(t, err)

	want := []float64{5.0 / 8.0, 0.5, 1}
	if diff := cmp.Diff(want, ds.AlleleFrequencies()); diff != "" {
		t.Errorf("AlleleFrequencies() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/data/sim.csv", []byte(sampleCSV), 0644))

	ds, err := LoadFile(mfs, "/data/sim.csv", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, ds.N())

	_, err = LoadFile(mfs, "/data/missing.csv", ReadOptions{})
	assert.Error(t, err)
}
