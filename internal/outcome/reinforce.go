package outcome

import (
	"math"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Bayesian confidence reinforcement for learnings. Each new signal moves
// confidence by baseDelta / sqrt(times_applied + 1), so a well-established
// learning barely moves while a fresh one swings.

const (
	deltaPositive = 0.3
	deltaNegative = -0.4
	deltaDecay    = -0.1

	confidenceFloor   = 0.5
	confidenceCeiling = 10.0
)

// ReinforceDelta computes the stabilized confidence step.
func ReinforceDelta(baseDelta float64, timesApplied int64) float64 {
	return baseDelta / math.Sqrt(float64(timesApplied)+1)
}

// ReinforcedConfidence applies one signal with clamping.
func ReinforcedConfidence(old, baseDelta float64, timesApplied int64) float64 {
	next := old + ReinforceDelta(baseDelta, timesApplied)
	if next < confidenceFloor {
		return confidenceFloor
	}
	if next > confidenceCeiling {
		return confidenceCeiling
	}
	return next
}

// reinforceLearnings updates every learning this session surfaced. The signal
// direction follows the session's success level; foundational learnings are
// exempt from the partial-outcome decay.
func reinforceLearnings(s *store.Store, session store.SessionRow, success int) {
	log := logging.Get(logging.CategoryOutcome)

	ids, err := s.TouchedLearningIDs(session.ID)
	if err != nil {
		logging.Suppress("reinforcer.touched", err)
		return
	}

	var baseDelta float64
	switch success {
	case SuccessFull:
		baseDelta = deltaPositive
	case SuccessFailed:
		baseDelta = deltaNegative
	default:
		baseDelta = deltaDecay
	}

	for _, id := range ids {
		l, err := s.GetLearning(id)
		if err != nil {
			logging.Suppress("reinforcer.load", err)
			continue
		}
		if baseDelta == deltaDecay && l.Foundational {
			continue
		}
		next := ReinforcedConfidence(l.Confidence, baseDelta, l.TimesApplied)
		if err := s.UpdateLearningConfidence(id, next, true); err != nil {
			logging.Suppress("reinforcer.update", err)
			continue
		}
		log.Debug("reinforced learning %d: %.2f -> %.2f (applied %d times)", id, l.Confidence, next, l.TimesApplied+1)
	}
}
