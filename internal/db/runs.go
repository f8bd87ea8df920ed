package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/msod/internal/analysis"
	"github.com/banshee-data/msod/internal/timeutil"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is the stored summary of one analysis.
type Run struct {
	RunID        string          `json:"run_id"`
	Dataset      string          `json:"dataset"`
	CreatedAt    int64           `json:"created_at"`
	ParamsJSON   json.RawMessage `json:"params_json,omitempty"`
	NIndividuals int             `json:"n_individuals"`
	NLoci        int             `json:"n_loci"`
	NMEM         int             `json:"n_mem"`
	Habitat      string          `json:"habitat"`
	Seed         uint64          `json:"seed,string"`
	ElapsedMS    int64           `json:"elapsed_ms"`
	Edges        int             `json:"edges"`
	DroppedLoci  []string        `json:"dropped_loci,omitempty"`
	NOutliers    int             `json:"n_outliers"`
}

// Spectrum is the per-MEM part of a stored run.
type Spectrum struct {
	Eigenvalues  []float64 `json:"eigenvalues"`
	MoranI       []float64 `json:"moran_i"`
	MeanPower    []float64 `json:"mean_power"`
	HabitatPower []float64 `json:"habitat_power"`
}

// RunStore reads and writes analysis runs.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewRunStore returns a store on db using the real clock.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// WithClock replaces the clock used to stamp runs without a creation time.
func (s *RunStore) WithClock(c timeutil.Clock) *RunStore {
	s.clock = c
	return s
}

// Insert stores rep under a new UUID and returns it. dataset names the input.
func (s *RunStore) Insert(rep *analysis.Report, dataset string) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("nil report")
	}
	id := uuid.New().String()
	created := rep.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}

	var params interface{}
	if rep.Params != nil {
		b, err := rep.Params.JSON()
		if err != nil {
			return "", fmt.Errorf("encode params: %w", err)
		}
		params = string(b)
	}

	dropped := ""
	if len(rep.Dropped) > 0 {
		b, err := json.Marshal(rep.Dropped)
		if err != nil {
			return "", fmt.Errorf("encode dropped loci: %w", err)
		}
		dropped = string(b)
	}

	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			INSERT INTO analysis_runs (
				run_id, dataset, created_at, params_json, n_individuals, n_loci,
				n_mem, habitat, seed, elapsed_ms, edges, dropped_loci
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, dataset, created.UnixNano(), params, rep.Individuals, len(rep.Loci),
			len(rep.Eigenvalues), rep.Habitat, strconv.FormatUint(rep.Seed, 10),
			rep.Elapsed.Milliseconds(), rep.Edges, dropped,
		); err != nil {
			return err
		}

		locusStmt, err := tx.Prepare(`
			INSERT INTO locus_results (
				run_id, idx, locus, frequency, distance, z_score, msod_p, msod_p_adj,
				msod_outlier, msr_p, msr_p_adj, msr_outlier
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer locusStmt.Close()
		for i, l := range rep.Loci {
			if _, err := locusStmt.Exec(id, i, l.Locus, l.Frequency, l.Distance, l.Z,
				l.MSODP, l.MSODPAdj, l.MSODOutlier, l.MSRP, l.MSRPAdj, l.MSROutlier); err != nil {
				return fmt.Errorf("insert locus %s: %w", l.Locus, err)
			}
		}

		memStmt, err := tx.Prepare(`
			INSERT INTO mem_eigenvalues (run_id, idx, eigenvalue, moran_i, mean_power, habitat_power)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer memStmt.Close()
		for j, ev := range rep.Eigenvalues {
			if _, err := memStmt.Exec(id, j, ev, at(rep.MoranI, j), at(rep.MeanSpectrum, j), at(rep.HabitatSpectrum, j)); err != nil {
				return fmt.Errorf("insert MEM %d: %w", j, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

const runColumns = `
	r.run_id, r.dataset, r.created_at, r.params_json, r.n_individuals, r.n_loci,
	r.n_mem, r.habitat, r.seed, r.elapsed_ms, r.edges, r.dropped_loci,
	(SELECT COUNT(*) FROM locus_results l
	 WHERE l.run_id = r.run_id AND (l.msod_outlier OR l.msr_outlier))`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run     Run
		params  sql.NullString
		seed    string
		dropped string
	)
	if err := row.Scan(&run.RunID, &run.Dataset, &run.CreatedAt, &params, &run.NIndividuals,
		&run.NLoci, &run.NMEM, &run.Habitat, &seed, &run.ElapsedMS, &run.Edges, &dropped,
		&run.NOutliers); err != nil {
		return nil, err
	}
	if params.Valid {
		run.ParamsJSON = json.RawMessage(params.String)
	}
	if dropped != "" {
		if err := json.Unmarshal([]byte(dropped), &run.DroppedLoci); err != nil {
			return nil, fmt.Errorf("parse dropped loci: %w", err)
		}
	}
	s, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse seed %q: %w", seed, err)
	}
	run.Seed = s
	return &run, nil
}

// Get returns the run with the given ID.
func (s *RunStore) Get(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs r WHERE r.run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first. limit <= 0 means 100.
func (s *RunStore) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM analysis_runs r
		ORDER BY r.created_at DESC, r.run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Loci returns the per-locus results of a run in input order.
func (s *RunStore) Loci(id string) ([]analysis.LocusResult, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT locus, frequency, distance, z_score, msod_p, msod_p_adj, msod_outlier,
		       msr_p, msr_p_adj, msr_outlier
		FROM locus_results WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query loci: %w", err)
	}
	defer rows.Close()

	var out []analysis.LocusResult
	for rows.Next() {
		var l analysis.LocusResult
		if err := rows.Scan(&l.Locus, &l.Frequency, &l.Distance, &l.Z, &l.MSODP, &l.MSODPAdj,
			&l.MSODOutlier, &l.MSRP, &l.MSRPAdj, &l.MSROutlier); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Spectrum returns the per-MEM values of a run.
func (s *RunStore) Spectrum(id string) (*Spectrum, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT eigenvalue, moran_i, mean_power, habitat_power
		FROM mem_eigenvalues WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query spectrum: %w", err)
	}
	defer rows.Close()

	sp := &Spectrum{}
	for rows.Next() {
		var ev, mi, mp, hp float64
		if err := rows.Scan(&ev, &mi, &mp, &hp); err != nil {
			return nil, err
		}
		sp.Eigenvalues = append(sp.Eigenvalues, ev)
		sp.MoranI = append(sp.MoranI, mi)
		sp.MeanPower = append(sp.MeanPower, mp)
		sp.HabitatPower = append(sp.HabitatPower, hp)
	}
	return sp, rows.Err()
}

// Delete removes a run and its results.
func (s *RunStore) Delete(id string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM analysis_runs WHERE run_id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}

// CreatedTime converts the stored creation time.
func (r *Run) CreatedTime() time.Time {
	return time.Unix(0, r.CreatedAt).UTC()
}
