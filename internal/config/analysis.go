package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Graph construction methods.
const (
	GraphGabriel  = "gabriel"
	GraphDistance = "distance"
	GraphKNN      = "knn"
)

// Edge weighting schemes.
const (
	WeightBinary  = "binary"
	WeightInverse = "inverse"
	WeightLinear  = "linear"
)

// Which side of the MEM spectrum to keep.
const (
	AutocorPositive = "positive"
	AutocorNegative = "negative"
	AutocorAll      = "all"
)

// Multiple-testing corrections applied to per-locus p-values.
const (
	CorrectionNone       = "none"
	CorrectionBonferroni = "bonferroni"
	CorrectionBH         = "bh"
)

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// AnalysisConfig holds the parameters of one MSOD/MSR run. Every field is
// optional; the Get* accessors supply defaults for fields left out of the
// JSON, so partial configs are safe. The same JSON is stored alongside each
// persisted run.
type AnalysisConfig struct {
	// Spatial graph
	Graph             *string  `json:"graph,omitempty"`
	DistanceThreshold *float64 `json:"distance_threshold,omitempty"` // <= 0: largest MST edge
	KNNK              *int     `json:"knn_k,omitempty"`

	// Weights
	Weighting   *string  `json:"weighting,omitempty"`
	WeightAlpha *float64 `json:"weight_alpha,omitempty"`

	// Eigenvector maps
	MEMAutocor     *string  `json:"mem_autocor,omitempty"`
	EigenTolerance *float64 `json:"eigen_tolerance,omitempty"`

	// Randomization test
	Permutations *int    `json:"permutations,omitempty"`
	Seed         *uint64 `json:"seed,omitempty"` // 0: seeded from the clock
	Workers      *int    `json:"workers,omitempty"`

	// Reporting
	Alpha      *float64 `json:"alpha,omitempty"`
	Correction *string  `json:"correction,omitempty"`

	// Input handling
	HabitatLevel  *string `json:"habitat_level,omitempty"` // empty: first level seen
	ImputeMissing *bool   `json:"impute_missing,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with every field unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseAnalysisConfig(data)
}

// ParseAnalysisConfig decodes and validates a JSON config document.
func ParseAnalysisConfig(data []byte) (*AnalysisConfig, error) {
	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// JSON returns the config as stored with a run.
func (c *AnalysisConfig) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.Graph != nil {
		switch *c.Graph {
		case GraphGabriel, GraphDistance, GraphKNN:
		default:
			return fmt.Errorf("graph must be one of %q, %q, %q, got %q", GraphGabriel, GraphDistance, GraphKNN, *c.Graph)
		}
	}
	if c.KNNK != nil && *c.KNNK < 1 {
		return fmt.Errorf("knn_k must be at least 1, got %d", *c.KNNK)
	}
	if c.Weighting != nil {
		switch *c.Weighting {
		case WeightBinary, WeightInverse, WeightLinear:
		default:
			return fmt.Errorf("weighting must be one of %q, %q, %q, got %q", WeightBinary, WeightInverse, WeightLinear, *c.Weighting)
		}
	}
	if c.WeightAlpha != nil && *c.WeightAlpha <= 0 {
		return fmt.Errorf("weight_alpha must be positive, got %f", *c.WeightAlpha)
	}
	if c.MEMAutocor != nil {
		switch *c.MEMAutocor {
		case AutocorPositive, AutocorNegative, AutocorAll:
		default:
			return fmt.Errorf("mem_autocor must be one of %q, %q, %q, got %q", AutocorPositive, AutocorNegative, AutocorAll, *c.MEMAutocor)
		}
	}
	if c.EigenTolerance != nil && *c.EigenTolerance <= 0 {
		return fmt.Errorf("eigen_tolerance must be positive, got %g", *c.EigenTolerance)
	}
	if c.Permutations != nil && *c.Permutations < 1 {
		return fmt.Errorf("permutations must be at least 1, got %d", *c.Permutations)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Alpha != nil && (*c.Alpha <= 0 || *c.Alpha >= 1) {
		return fmt.Errorf("alpha must be between 0 and 1, got %f", *c.Alpha)
	}
	if c.Correction != nil {
		switch *c.Correction {
		case CorrectionNone, CorrectionBonferroni, CorrectionBH:
		default:
			return fmt.Errorf("correction must be one of %q, %q, %q, got %q", CorrectionNone, CorrectionBonferroni, CorrectionBH, *c.Correction)
		}
	}
	return nil
}

// GetGraph returns the graph value or the default.
func (c *AnalysisConfig) GetGraph() string {
	if c.Graph == nil {
		return GraphGabriel
	}
	return *c.Graph
}

// GetDistanceThreshold returns the distance_threshold value or the default.
// Zero tells the spatial package to use the largest minimum spanning tree edge.
func (c *AnalysisConfig) GetDistanceThreshold() float64 {
	if c.DistanceThreshold == nil {
		return 0
	}
	return *c.DistanceThreshold
}

// GetKNNK returns the knn_k value or the default.
func (c *AnalysisConfig) GetKNNK() int {
	if c.KNNK == nil {
		return 4
	}
	return *c.KNNK
}

// GetWeighting returns the weighting value or the default.
func (c *AnalysisConfig) GetWeighting() string {
	if c.Weighting == nil {
		return WeightBinary
	}
	return *c.Weighting
}

// GetWeightAlpha returns the weight_alpha value or the default.
func (c *AnalysisConfig) GetWeightAlpha() float64 {
	if c.WeightAlpha == nil {
		return 1
	}
	return *c.WeightAlpha
}

// GetMEMAutocor returns the mem_autocor value or the default.
func (c *AnalysisConfig) GetMEMAutocor() string {
	if c.MEMAutocor == nil {
		return AutocorPositive
	}
	return *c.MEMAutocor
}

// GetEigenTolerance returns the eigen_tolerance value or the default.
func (c *AnalysisConfig) GetEigenTolerance() float64 {
	if c.EigenTolerance == nil {
		return 1e-8
	}
	return *c.EigenTolerance
}

// GetPermutations returns the permutations value or the default.
func (c *AnalysisConfig) GetPermutations() int {
	if c.Permutations == nil {
		return 999
	}
	return *c.Permutations
}

// GetSeed returns the seed value or 0 when unset.
func (c *AnalysisConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetWorkers returns the workers value, falling back to GOMAXPROCS.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetAlpha returns the alpha value or the default.
func (c *AnalysisConfig) GetAlpha() float64 {
	if c.Alpha == nil {
		return 0.05
	}
	return *c.Alpha
}

// GetCorrection returns the correction value or the default.
func (c *AnalysisConfig) GetCorrection() string {
	if c.Correction == nil {
		return CorrectionBH
	}
	return *c.Correction
}

// GetHabitatLevel returns the habitat_level value or "".
func (c *AnalysisConfig) GetHabitatLevel() string {
	if c.HabitatLevel == nil {
		return ""
	}
	return *c.HabitatLevel
}

// GetImputeMissing returns the impute_missing value or the default.
func (c *AnalysisConfig) GetImputeMissing() bool {
	if c.ImputeMissing == nil {
		return false
	}
	return *c.ImputeMissing
}

// DefaultAnalysisConfig returns a config with every field populated from
// the defaults. Useful for printing the effective configuration.
func DefaultAnalysisConfig() *AnalysisConfig {
	return EmptyAnalysisConfig().WithDefaults()
}

// WithDefaults returns a copy of c with every unset field filled in. An
// unset workers count stays 0, meaning GOMAXPROCS at run time.
func (c *AnalysisConfig) WithDefaults() *AnalysisConfig {
	seed := c.GetSeed()
	impute := c.GetImputeMissing()
	workers := 0
	if c.Workers != nil {
		workers = *c.Workers
	}
	return &AnalysisConfig{
		Graph:             ptrString(c.GetGraph()),
		DistanceThreshold: ptrFloat64(c.GetDistanceThreshold()),
		KNNK:              ptrInt(c.GetKNNK()),
		Weighting:         ptrString(c.GetWeighting()),
		WeightAlpha:       ptrFloat64(c.GetWeightAlpha()),
		MEMAutocor:        ptrString(c.GetMEMAutocor()),
		EigenTolerance:    ptrFloat64(c.GetEigenTolerance()),
		Permutations:      ptrInt(c.GetPermutations()),
		Seed:              &seed,
		Workers:           ptrInt(workers),
		Alpha:             ptrFloat64(c.GetAlpha()),
		Correction:        ptrString(c.GetCorrection()),
		HabitatLevel:      ptrString(c.GetHabitatLevel()),
		ImputeMissing:     &impute,
	}
}
