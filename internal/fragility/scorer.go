package fragility

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Scorer runs the fragility scan over a project's files.
type Scorer struct {
	store *store.Store
}

// NewScorer builds a scorer over the given store.
func NewScorer(s *store.Store) *Scorer {
	return &Scorer{store: s}
}

// Result reports a scan.
type Result struct {
	Computed int
	Updated  int
}

// DefaultMaxFiles bounds one scan pass.
const DefaultMaxFiles = 500

// ComputeProjectFragility scores up to maxFiles files, worst-first, and
// persists score plus breakdown. A file whose backing tables are missing or
// unreadable yields no score and the scan continues; the context is checked
// between files so background cancellation lands on a file boundary.
func (sc *Scorer) ComputeProjectFragility(ctx context.Context, projectID int64, maxFiles int) (Result, error) {
	log := logging.Get(logging.CategoryFragility)
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	files, err := sc.store.FilesForScoring(projectID, maxFiles)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Computed++

		signals, ok := sc.gather(projectID, f)
		if !ok {
			continue
		}
		score := signals.Composite()
		blob, err := json.Marshal(signals)
		if err != nil {
			logging.Suppress("fragility.marshal", err)
			continue
		}
		if err := sc.store.SaveFragility(f.ID, score, string(blob)); err != nil {
			logging.Suppress("fragility.save", err)
			continue
		}
		res.Updated++
		log.Debug("scored %s: %d (%s)", f.Path, score, signals.Explain())
	}

	log.Info("fragility scan: computed=%d updated=%d", res.Computed, res.Updated)
	return res, nil
}

// gather collects the raw inputs for one file. false means a backing query
// failed; the file keeps its previous score.
func (sc *Scorer) gather(projectID int64, f store.FileRow) (Signals, bool) {
	dependents, err := sc.store.DistinctCallers(projectID, f.Path)
	if err != nil {
		logging.Suppress("fragility.dependents", err)
		return Signals{}, false
	}
	hasTests, err := sc.store.HasTests(projectID, f.Path)
	if err != nil {
		logging.Suppress("fragility.tests", err)
		return Signals{}, false
	}
	errors90d, err := sc.store.ErrorCountForFile(projectID, f.Path, time.Now().Add(-90*24*time.Hour))
	if err != nil {
		logging.Suppress("fragility.errors", err)
		return Signals{}, false
	}
	total, exported, err := sc.store.SymbolCounts(f.ID)
	if err != nil {
		logging.Suppress("fragility.symbols", err)
		return Signals{}, false
	}

	return Compute(Inputs{
		DependentCount: int(dependents),
		HasTests:       hasTests,
		ChangesPerWeek: f.VelocityScore,
		ErrorCount90d:  int(errors90d),
		ExportedCount:  int(exported),
		SymbolCount:    int(total),
		ManualScore:    f.ManualFragility,
	}), true
}
