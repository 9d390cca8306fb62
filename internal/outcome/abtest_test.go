package outcome

import (
	"strings"
	"testing"

	"github.com/ravnltd/muninn/internal/store"
)

func TestAssignArmDeterministic(t *testing.T) {
	for id := int64(0); id < 100; id++ {
		first := AssignArm(id)
		for i := 0; i < 5; i++ {
			if AssignArm(id) != first {
				t.Fatalf("arm assignment unstable for session %d", id)
			}
		}
	}

	// Over a dense range the arms differ by at most one.
	control, variant := 0, 0
	for id := int64(1); id <= 1001; id++ {
		if AssignArm(id) == "control" {
			control++
		} else {
			variant++
		}
	}
	if diff := control - variant; diff < -1 || diff > 1 {
		t.Errorf("arm sizes diverged: control=%d variant=%d", control, variant)
	}
}

// Worked scenario: 20 sessions per arm, control mean 0.7 vs variant 0.8.
// Relative difference 0.143 beats the 0.1 floor: variant wins.
func TestConcludeWorkedExample(t *testing.T) {
	test := store.ABTestRow{
		MinSessions:      20,
		ControlSessions:  20,
		VariantSessions:  20,
		ControlMetricSum: 14,
		VariantMetricSum: 16,
	}
	conclusion, winner := Conclude(test)
	if winner != "variant" {
		t.Fatalf("winner = %q, want variant (%s)", winner, conclusion)
	}
	if !strings.Contains(conclusion, "+14.3%") {
		t.Errorf("conclusion missing relative gain: %s", conclusion)
	}
}

func TestConcludeNoSignificantDifference(t *testing.T) {
	test := store.ABTestRow{
		ControlSessions:  20,
		VariantSessions:  20,
		ControlMetricSum: 14.0,
		VariantMetricSum: 14.5,
	}
	conclusion, winner := Conclude(test)
	if winner != "" {
		t.Fatalf("expected no winner, got %q", winner)
	}
	if !strings.Contains(conclusion, "no significant difference") {
		t.Errorf("unexpected conclusion: %s", conclusion)
	}
}

func TestConcludeZeroControlMean(t *testing.T) {
	test := store.ABTestRow{
		ControlSessions:  20,
		VariantSessions:  20,
		ControlMetricSum: 0,
		VariantMetricSum: 10,
	}
	_, winner := Conclude(test)
	if winner != "variant" {
		t.Errorf("variant should win against a zero control mean, got %q", winner)
	}
}
