// Package outcome implements the session-end learning pipeline: outcome
// inference, context-injection feedback, retrieval calibration, confidence
// reinforcement, reasoning-trace extraction, strategy distillation and A/B
// accounting. Every pass is independent and tolerant of missing tables; the
// whole pipeline is idempotent per session.
package outcome

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Success levels written to sessions.success. The numeric field is canonical;
// the outcome string is display-only.
const (
	SuccessFailed  = 0
	SuccessPartial = 1
	SuccessFull    = 2
)

// Normalization caps per signal category.
const (
	capCommits  = 3
	capIssues   = 3
	capErrors   = 5
	capFileMods = 5
)

// InferenceSignals are the observable counts a session's outcome is inferred
// from.
type InferenceSignals struct {
	Commits        int64
	TestsPassed    int64
	TestsFailed    int64
	IssuesResolved int64
	ErrorEvents    int64
	Reverts        int64
	FileMods       int64
}

// InferScore folds the signals into a [0,1] score starting from neutral 0.5.
func InferScore(sig InferenceSignals) float64 {
	score := 0.5

	score += normalize(sig.Commits, capCommits) * 0.2

	if sig.TestsPassed > 0 || sig.TestsFailed > 0 {
		if sig.TestsFailed == 0 {
			score += 0.2
		} else {
			failRate := float64(sig.TestsFailed) / float64(sig.TestsPassed+sig.TestsFailed)
			score -= failRate * 0.2
		}
	}

	score += normalize(sig.IssuesResolved, capIssues) * 0.1
	score -= normalize(sig.ErrorEvents, capErrors) * 0.2
	if sig.Reverts > 0 {
		score -= 0.3
	}
	score += normalize(sig.FileMods, capFileMods) * 0.1

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// SuccessLevel maps a score to the three-level success field.
func SuccessLevel(score float64) int {
	switch {
	case score >= 0.7:
		return SuccessFull
	case score >= 0.4:
		return SuccessPartial
	default:
		return SuccessFailed
	}
}

func normalize(count, cap int64) float64 {
	if count > cap {
		count = cap
	}
	if count < 0 {
		count = 0
	}
	return float64(count) / float64(cap)
}

// gatherSignals fans out over the observation tables and joins before
// scoring. Individual failures zero that signal and are counted, not fatal.
func gatherSignals(ctx context.Context, s *store.Store, projectID int64, session store.SessionRow) InferenceSignals {
	var sig InferenceSignals
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.CommitCount(session.ID)
		if err != nil {
			logging.Suppress("inference.commits", err)
			return nil
		}
		sig.Commits = n
		return nil
	})
	g.Go(func() error {
		passed, failed, err := s.TestTotals(session.ID)
		if err != nil {
			logging.Suppress("inference.tests", err)
			return nil
		}
		sig.TestsPassed, sig.TestsFailed = passed, failed
		return nil
	})
	g.Go(func() error {
		if session.StartedAt.IsZero() || session.EndedAt.IsZero() {
			return nil
		}
		n, err := s.IssuesResolvedBetween(projectID, session.StartedAt, session.EndedAt)
		if err != nil {
			logging.Suppress("inference.issues", err)
			return nil
		}
		sig.IssuesResolved = n
		return nil
	})
	g.Go(func() error {
		n, err := s.ErrorCountForSession(session.ID)
		if err != nil {
			logging.Suppress("inference.errors", err)
			return nil
		}
		sig.ErrorEvents = n
		return nil
	})
	g.Go(func() error {
		n, err := s.RevertCount(session.ID)
		if err != nil {
			logging.Suppress("inference.reverts", err)
			return nil
		}
		sig.Reverts = n
		return nil
	})
	g.Go(func() error {
		files, err := s.FilesTouched(session.ID)
		if err != nil {
			logging.Suppress("inference.filemods", err)
			return nil
		}
		sig.FileMods = int64(len(files))
		return nil
	})

	_ = g.Wait()
	return sig
}
