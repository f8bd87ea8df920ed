package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/msod/internal/db"
	"github.com/banshee-data/msod/internal/monitoring"
	"github.com/banshee-data/msod/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestRunAnalyze(t *testing.T) {
	in := testutil.WriteGenotypeCSV(t, 4)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "runs.db")

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"analyze", "-in", in, "-out", outDir, "-plots", "-db", dbPath,
		"-permutations", "99", "-seed", "3", "-habitat", "forest",
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "16 individuals, 3 loci")
	assert.Contains(t, out.String(), "seed 3")
	assert.Contains(t, out.String(), "run id: ")

	for _, name := range []string{"loci.tsv", "report.json", "report.html", "spectrum.png", "zscores.png", "mem1_map.png"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	runs, err := db.NewRunStore(database).List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "genotypes.csv", runs[0].Dataset)
	assert.Equal(t, []string{"mono"}, runs[0].DroppedLoci)
	assert.Equal(t, uint64(3), runs[0].Seed)
}

func TestRunAnalyzeFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testutil.GenotypeCSV(4))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"analyze", "-url", srv.URL + "/genotypes.csv", "-cache", t.TempDir(),
		"-permutations", "19", "-seed", "1",
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "16 individuals")
}

func TestParseAnalyzeFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no input", nil, "exactly one of -in or -url"},
		{"both inputs", []string{"-in", "a.csv", "-url", "http://x/a.csv"}, "exactly one of -in or -url"},
		{"plots without out", []string{"-in", "a.csv", "-plots"}, "-plots requires -out"},
		{"negative permutations", []string{"-in", "a.csv", "-permutations", "-1"}, "must not be negative"},
		{"unknown flag", []string{"-in", "a.csv", "-bogus"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAnalyzeFlags(tt.args, &bytes.Buffer{})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	o, err := parseAnalyzeFlags([]string{"-in", "a.csv", "-seed", "9", "-workers", "2"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, ".msod-cache", o.cacheDir)
	cfg, err := o.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cfg.GetSeed())
	assert.Equal(t, 2, cfg.GetWorkers())
	assert.Equal(t, 999, cfg.GetPermutations())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"graph": "distance", "permutations": 49}`), 0o644))

	o, err := parseAnalyzeFlags([]string{"-in", "a.csv", "-config", path, "-permutations", "199"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := o.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "distance", cfg.GetGraph())
	assert.Equal(t, 199, cfg.GetPermutations())
}

func TestRunCommands(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "msod "))

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"config"}, &out))
	assert.Contains(t, out.String(), `"permutations":999`)
	assert.Contains(t, out.String(), `"graph":"gabriel"`)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "Usage: msod <command>")

	out.Reset()
	assert.ErrorIs(t, run(context.Background(), []string{"frobnicate"}, &out), errUsage)
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	assert.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
}

func TestRunMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	require.NoError(t, run(context.Background(), []string{"migrate", "-db", path, "up"}, &bytes.Buffer{}))

	database, err := db.OpenDB(path)
	require.NoError(t, err)
	defer database.Close()
	version, _, err := database.MigrateVersion()
	require.NoError(t, err)
	latest, err := db.LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
}

func TestRunServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, []string{"serve", "-listen", "127.0.0.1:0", "-db", filepath.Join(t.TempDir(), "s.db")}, &bytes.Buffer{})
	assert.NoError(t, err)
}
