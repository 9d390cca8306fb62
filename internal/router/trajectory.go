package router

import (
	"github.com/ravnltd/muninn/internal/budget"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Trajectory detection: label the most recent session's behavior from its
// tool-call shape. The label steers the allocator; confidence scales with how
// much evidence the session has produced.

// minTrajectoryCalls is the evidence floor below which no pattern is claimed.
const minTrajectoryCalls = 4

// DetectTrajectory inspects the latest session's tool calls and returns a
// pattern with confidence. An idle project yields an empty pattern at zero
// confidence, which the allocator ignores.
func DetectTrajectory(s *store.Store, projectID int64) budget.Trajectory {
	sessions, err := s.RecentSessions(projectID, 1)
	if err != nil || len(sessions) == 0 {
		if err != nil {
			logging.Suppress("router.trajectory", err)
		}
		return budget.Trajectory{}
	}

	calls, err := s.ToolCalls(sessions[0].ID)
	if err != nil {
		logging.Suppress("router.trajectory", err)
		return budget.Trajectory{}
	}
	if len(calls) < minTrajectoryCalls {
		return budget.Trajectory{}
	}

	var failures int
	fileSeen := make(map[string]int)
	var rereads, distinctFiles int
	for _, c := range calls {
		if !c.Success {
			failures++
		}
		for _, f := range c.FilesInvolved {
			fileSeen[f]++
			if fileSeen[f] == 1 {
				distinctFiles++
			} else {
				rereads++
			}
		}
	}

	confidence := float64(len(calls)) / 10.0
	if confidence > 1 {
		confidence = 1
	}

	failureRate := float64(failures) / float64(len(calls))
	rereadRate := float64(rereads) / float64(maxInt(distinctFiles, 1))

	switch {
	case failureRate > 0.4:
		return budget.Trajectory{Pattern: "failing", Confidence: confidence}
	case rereadRate > 1.5:
		// The session keeps circling back over the same files.
		return budget.Trajectory{Pattern: "stuck", Confidence: confidence}
	case distinctFiles >= 6 && failures == 0:
		return budget.Trajectory{Pattern: "exploration", Confidence: confidence}
	case failures == 0 && distinctFiles > 0:
		return budget.Trajectory{Pattern: "confident", Confidence: confidence * 0.8}
	default:
		return budget.Trajectory{}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
