// Package analysis runs the full Moran spectral pipeline over a genotype
// dataset: neighbour graph, weights, MEM basis, power spectra, MSOD scores
// and the MSR randomization test against a habitat predictor.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/msod/internal/config"
	"github.com/banshee-data/msod/internal/genotype"
	"github.com/banshee-data/msod/internal/mem"
	"github.com/banshee-data/msod/internal/monitoring"
	"github.com/banshee-data/msod/internal/msr"
	"github.com/banshee-data/msod/internal/spatial"
	"github.com/banshee-data/msod/internal/spectrum"
	"github.com/banshee-data/msod/internal/timeutil"
)

var (
	// ErrDisconnected is returned when the neighbour graph splits the sites
	// into more than one component. MEMs of a disconnected graph mix
	// within-component structure with component membership.
	ErrDisconnected = errors.New("neighbour graph is disconnected")

	// ErrNoLoci is returned when no polymorphic locus remains.
	ErrNoLoci = errors.New("no polymorphic loci")
)

// LocusResult collects everything computed for one locus.
type LocusResult struct {
	Locus     string  `json:"locus"`
	Frequency float64 `json:"frequency"`

	// MSOD
	Distance    float64 `json:"distance"`
	Z           float64 `json:"z_score"`
	MSODP       float64 `json:"msod_p"`
	MSODPAdj    float64 `json:"msod_p_adj"`
	MSODOutlier bool    `json:"msod_outlier"`

	// MSR against the habitat indicator
	MSRP       float64 `json:"msr_p"`
	MSRPAdj    float64 `json:"msr_p_adj"`
	MSROutlier bool    `json:"msr_outlier"`
}

// Report is the outcome of one run.
type Report struct {
	Source      string                 `json:"source,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Elapsed     time.Duration          `json:"elapsed"`
	Individuals int                    `json:"n_individuals"`
	Dropped     []string               `json:"dropped,omitempty"`
	Edges       int                    `json:"edges"`
	Habitat     string                 `json:"habitat"`
	Seed        uint64                 `json:"seed,string"`
	Params      *config.AnalysisConfig `json:"params"`

	Loci         []LocusResult `json:"loci"`
	MeanSpectrum []float64     `json:"mean_spectrum"`
	Eigenvalues  []float64     `json:"eigenvalues"`
	MoranI       []float64     `json:"moran_i"`
	// HabitatSpectrum is the power spectrum of the habitat predictor.
	HabitatSpectrum []float64 `json:"habitat_spectrum"`

	// Not serialised; kept for plotting.
	Coordinates *mat.Dense `json:"-"`
	Basis       *mem.Basis `json:"-"`
}

// Outliers returns the names of loci flagged by either test.
func (r *Report) Outliers() []string {
	var out []string
	for _, l := range r.Loci {
		if l.MSODOutlier || l.MSROutlier {
			out = append(out, l.Locus)
		}
	}
	return out
}

// Runner executes analyses. The zero value uses the real clock.
type Runner struct {
	Clock timeutil.Clock
}

// Run analyses ds with cfg using the real clock. See Runner.Run.
func Run(ctx context.Context, ds *genotype.Dataset, cfg *config.AnalysisConfig) (*Report, error) {
	return (&Runner{}).Run(ctx, ds, cfg)
}

// Run analyses ds with cfg. Monomorphic loci are removed from ds in place.
// A nil cfg uses the defaults.
func (rn *Runner) Run(ctx context.Context, ds *genotype.Dataset, cfg *config.AnalysisConfig) (*Report, error) {
	clock := rn.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg == nil {
		cfg = config.EmptyAnalysisConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	start := clock.Now()

	dropped := ds.DropMonomorphic()
	if len(dropped) > 0 {
		monitoring.Logf("dropped %d monomorphic loci", len(dropped))
	}
	if ds.NumLoci() == 0 {
		return nil, ErrNoLoci
	}

	habitat := cfg.GetHabitatLevel()
	if habitat == "" && len(ds.Habitats) > 0 {
		habitat = ds.Habitats[0]
	}
	predictor, err := ds.HabitatIndicator(habitat)
	if err != nil {
		return nil, err
	}

	gr, err := buildGraph(ds.Coordinates(), cfg)
	if err != nil {
		return nil, err
	}
	basis, err := buildBasis(gr, cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := monitoring.Stage("spectrum")
	r, err := spectrum.Correlations(ds.Counts, basis.Vectors)
	if err != nil {
		return nil, fmt.Errorf("locus correlations: %w", err)
	}
	x, err := spectrum.Correlations(mat.NewDense(ds.N(), 1, predictor), basis.Vectors)
	if err != nil {
		return nil, fmt.Errorf("habitat correlations: %w", err)
	}
	power := spectrum.Power(r)
	scores := spectrum.OutlierScores(power)
	if err := spectrum.Flag(scores, cfg.GetAlpha(), cfg.GetCorrection()); err != nil {
		return nil, err
	}
	done()

	done = monitoring.Stage("msr")
	res, err := msr.Test(ctx, r, x, msr.Options{
		Permutations: cfg.GetPermutations(),
		Seed:         cfg.GetSeed(),
		Workers:      cfg.GetWorkers(),
	})
	if err != nil {
		return nil, fmt.Errorf("randomization test: %w", err)
	}
	msrP := res.Column(0)
	msrAdj, err := msr.Adjust(msrP, cfg.GetCorrection())
	if err != nil {
		return nil, err
	}
	done()

	freqs := ds.AlleleFrequencies()
	loci := make([]LocusResult, ds.NumLoci())
	for i, name := range ds.Loci {
		loci[i] = LocusResult{
			Locus:       name,
			Frequency:   freqs[i],
			Distance:    scores[i].Distance,
			Z:           scores[i].Z,
			MSODP:       scores[i].P,
			MSODPAdj:    scores[i].PAdjusted,
			MSODOutlier: scores[i].Outlier,
			MSRP:        msrP[i],
			MSRPAdj:     msrAdj[i],
			MSROutlier:  msrAdj[i] < cfg.GetAlpha(),
		}
	}

	rep := &Report{
		CreatedAt:       start.UTC(),
		Elapsed:         clock.Since(start),
		Individuals:     ds.N(),
		Dropped:         dropped,
		Edges:           len(gr.Edges()),
		Habitat:         habitat,
		Seed:            res.Seed,
		Params:          cfg,
		Loci:            loci,
		MeanSpectrum:    spectrum.MeanSpectrum(power),
		Eigenvalues:     basis.Eigenvalues,
		MoranI:          basis.MoranI,
		HabitatSpectrum: mat.Row(nil, 0, spectrum.Power(x)),
		Coordinates:     ds.Coordinates(),
		Basis:           basis,
	}
	monitoring.Logf("analysis complete: %d loci, %d MEMs, %d outliers, seed %d",
		len(loci), basis.K(), len(rep.Outliers()), rep.Seed)
	return rep, nil
}

func buildGraph(coords *mat.Dense, cfg *config.AnalysisConfig) (*spatial.Graph, error) {
	defer monitoring.Stage("graph")()

	var (
		gr  *spatial.Graph
		err error
	)
	switch cfg.GetGraph() {
	case config.GraphDistance:
		gr, err = spatial.DistanceGraph(coords, cfg.GetDistanceThreshold())
	case config.GraphKNN:
		gr, err = spatial.KNearestGraph(coords, cfg.GetKNNK())
	default:
		gr, err = spatial.GabrielGraph(coords)
	}
	if err != nil {
		return nil, fmt.Errorf("%s graph: %w", cfg.GetGraph(), err)
	}
	if !gr.Connected() {
		return nil, fmt.Errorf("%w: %s graph has %d components", ErrDisconnected, cfg.GetGraph(), gr.Components())
	}
	monitoring.Logf("%s graph: %d sites, %d edges", cfg.GetGraph(), gr.N(), len(gr.Edges()))
	return gr, nil
}

func buildBasis(gr *spatial.Graph, cfg *config.AnalysisConfig) (*mem.Basis, error) {
	defer monitoring.Stage("mem")()

	w, err := spatial.Weights(gr, cfg.GetWeighting(), cfg.GetWeightAlpha())
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	basis, err := mem.Build(w, mem.Options{
		Autocor:   cfg.GetMEMAutocor(),
		Tolerance: cfg.GetEigenTolerance(),
	})
	if err != nil {
		return nil, fmt.Errorf("MEM basis: %w", err)
	}
	monitoring.Logf("kept %d %s MEMs", basis.K(), cfg.GetMEMAutocor())
	return basis, nil
}
