package outcome

import (
	"github.com/ravnltd/muninn/internal/budget"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Context-injection feedback: decide which surfaced items were actually used,
// then tune the per-kind budget recommendations from the last 30 sessions.

const (
	feedbackWindow = 30

	pushUseRate     = 0.7
	pushSuccessCorr = 0.6
	pushCeiling     = 600

	pullUseRate  = 0.3
	pullMinTotal = 10
	pullFloor    = 100
)

// applyInjectionFeedback marks used injections for a session and refreshes
// budget recommendations.
func applyInjectionFeedback(s *store.Store, projectID int64, session store.SessionRow) {
	log := logging.Get(logging.CategoryOutcome)

	touched, err := s.FilesTouched(session.ID)
	if err != nil {
		logging.Suppress("feedback.touched", err)
		return
	}
	touchedSet := make(map[string]bool, len(touched))
	for _, f := range touched {
		touchedSet[f] = true
	}

	injections, err := s.Injections(session.ID)
	if err != nil {
		logging.Suppress("feedback.injections", err)
		return
	}
	for _, inj := range injections {
		if inj.WasUsed {
			continue
		}
		used := false
		switch inj.ContextType {
		case "file", "cochanger":
			if f, err := s.FileByID(inj.SourceID); err == nil && touchedSet[f.Path] {
				used = true
			}
		case "decision", "learning":
			// Knowledge items count as used when surfaced; their value is
			// informing the approach, not touching a path.
			used = true
		}
		if used {
			if err := s.MarkInjectionUsed(inj.ID); err != nil {
				logging.Suppress("feedback.mark", err)
			}
		}
	}

	stats, err := s.InjectionStatsRecent(projectID, feedbackWindow)
	if err != nil {
		logging.Suppress("feedback.stats", err)
		return
	}
	recs, err := s.BudgetRecommendations(projectID)
	if err != nil {
		logging.Suppress("feedback.recs", err)
		recs = map[string]store.BudgetRecRow{}
	}

	for _, st := range stats {
		if st.Total == 0 {
			continue
		}
		kind := budget.ImpactKind(st.ContextType)
		cat, known := budget.KindCategory(kind)
		if !known {
			continue
		}

		current := budget.DefaultFor(cat)
		if rec, ok := recs[string(cat)]; ok {
			current = rec.RecommendedBudget
		}

		useRate := float64(st.Used) / float64(st.Total)
		var next int
		switch {
		case useRate >= pushUseRate && st.SuccessCorrelation >= pushSuccessCorr:
			next = int(float64(current) * 1.3)
			if next > pushCeiling {
				next = pushCeiling
			}
		case useRate < pullUseRate && st.Total >= pullMinTotal:
			next = int(float64(current) * 0.7)
			if next < pullFloor {
				next = pullFloor
			}
		default:
			continue
		}

		if err := s.UpsertBudgetRecommendation(projectID, string(cat), next, useRate); err != nil {
			logging.Suppress("feedback.upsert", err)
			continue
		}
		log.Debug("budget recommendation: %s -> %d (useRate=%.2f corr=%.2f)", cat, next, useRate, st.SuccessCorrelation)
	}
}
