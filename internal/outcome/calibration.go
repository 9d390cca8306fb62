package outcome

import (
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Retrieval calibration: compare what the suggestion tools proposed against
// what the session actually touched, and derive per-kind weight multipliers.

// suggestionTools are the tool calls whose files_involved are predictions.
var suggestionTools = map[string]string{
	"muninn_predict": "predicted",
	"muninn_suggest": "suggested",
	"muninn_enrich":  "enriched",
}

const minSuggestionsForWeights = 5

// calibrateRetrieval appends retrieval feedback for a session and returns the
// per-kind weight multipliers. Under the sample floor every weight stays 1.0.
func calibrateRetrieval(s *store.Store, projectID int64, session store.SessionRow) map[string]float64 {
	touched, err := s.FilesTouched(session.ID)
	if err != nil {
		logging.Suppress("calibration.touched", err)
		return nil
	}
	touchedSet := make(map[string]bool, len(touched))
	for _, f := range touched {
		touchedSet[f] = true
	}

	calls, err := s.ToolCalls(session.ID)
	if err != nil {
		logging.Suppress("calibration.calls", err)
		return nil
	}
	for _, call := range calls {
		kind, ok := suggestionTools[call.ToolName]
		if !ok {
			continue
		}
		for _, path := range call.FilesInvolved {
			used := touchedSet[path]
			relevance := 0.0
			if used {
				relevance = 1.0
			}
			if err := s.InsertRetrievalFeedback(projectID, session.ID, kind, path, true, used, relevance); err != nil {
				logging.Suppress("calibration.insert", err)
			}
		}
	}

	accuracy, err := s.RetrievalAccuracyByKind(projectID)
	if err != nil {
		logging.Suppress("calibration.accuracy", err)
		return nil
	}

	weights := make(map[string]float64, len(accuracy))
	for _, acc := range accuracy {
		if acc.Suggested < minSuggestionsForWeights {
			weights[acc.ContextType] = 1.0
			continue
		}
		switch {
		case acc.Accuracy >= 0.7:
			weights[acc.ContextType] = 1.2
		case acc.Accuracy >= 0.4:
			weights[acc.ContextType] = 1.0
		default:
			weights[acc.ContextType] = 0.8
		}
	}
	if len(weights) > 0 {
		logging.Get(logging.CategoryOutcome).Debug("retrieval weights: %v", weights)
	}
	return weights
}
