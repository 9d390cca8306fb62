package outcome

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// A/B budget experiments: deterministic arm assignment, per-session metric
// accounting and conclusion once both arms have enough sessions.

// significanceFloor is the relative difference below which arms are called
// equal.
const significanceFloor = 0.1

// AssignArm deterministically maps a session to an arm. Even ids run control.
func AssignArm(sessionID int64) string {
	if sessionID%2 == 0 {
		return "control"
	}
	return "variant"
}

// recordABSession adds the session's metric value to its arm and concludes
// the test when both arms are full.
func recordABSession(s *store.Store, projectID int64, sessionID int64, metricValue float64) {
	log := logging.Get(logging.CategoryOutcome)

	test, err := s.RunningABTest(projectID)
	if err != nil {
		// No running test is the normal case.
		return
	}

	variant := AssignArm(sessionID) == "variant"
	if err := s.RecordABSession(test.ID, variant, metricValue); err != nil {
		logging.Suppress("abtest.record", err)
		return
	}

	test, err = s.RunningABTest(projectID)
	if err != nil {
		return
	}
	if test.ControlSessions < test.MinSessions || test.VariantSessions < test.MinSessions {
		return
	}

	conclusion, winner := Conclude(test)
	if err := s.ConcludeABTest(test.ID, conclusion); err != nil {
		logging.Suppress("abtest.conclude", err)
		return
	}
	log.Info("A/B test %q concluded: %s", test.TestName, conclusion)

	if winner == "" {
		return
	}
	config := test.ControlConfig
	if winner == "variant" {
		config = test.VariantConfig
	}
	var budgets map[string]int
	if err := json.Unmarshal([]byte(config), &budgets); err != nil {
		logging.Suppress("abtest.config", err)
		return
	}
	for contextType, value := range budgets {
		if err := s.UpsertBudgetRecommendation(projectID, contextType, value, 0); err != nil {
			logging.Suppress("abtest.apply", err)
		}
	}
}

// Conclude compares arm means. The winner is empty when the difference is
// inside the significance floor.
func Conclude(test store.ABTestRow) (conclusion, winner string) {
	controlMean := 0.0
	if test.ControlSessions > 0 {
		controlMean = test.ControlMetricSum / float64(test.ControlSessions)
	}
	variantMean := 0.0
	if test.VariantSessions > 0 {
		variantMean = test.VariantMetricSum / float64(test.VariantSessions)
	}

	denominator := math.Max(controlMean, 0.01)
	relative := math.Abs(variantMean-controlMean) / denominator
	if relative < significanceFloor {
		return fmt.Sprintf("no significant difference (control %.3f vs variant %.3f)", controlMean, variantMean), ""
	}
	if variantMean > controlMean {
		return fmt.Sprintf("variant wins (+%.1f%%)", relative*100), "variant"
	}
	return fmt.Sprintf("control wins (+%.1f%%)", relative*100), "control"
}
