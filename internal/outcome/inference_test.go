package outcome

import (
	"math"
	"testing"
)

// Worked scenario: commits=2, tests 10/0, issues=1, errors=3, reverts=0,
// file mods=2 scores 0.786 and maps to full success.
func TestInferScoreWorkedExample(t *testing.T) {
	score := InferScore(InferenceSignals{
		Commits:        2,
		TestsPassed:    10,
		TestsFailed:    0,
		IssuesResolved: 1,
		ErrorEvents:    3,
		Reverts:        0,
		FileMods:       2,
	})
	if math.Abs(score-0.7867) > 0.001 {
		t.Errorf("score = %.4f, want ~0.7867", score)
	}
	if SuccessLevel(score) != SuccessFull {
		t.Errorf("success = %d, want %d", SuccessLevel(score), SuccessFull)
	}
}

func TestInferScoreClamped(t *testing.T) {
	low := InferScore(InferenceSignals{
		TestsPassed: 1, TestsFailed: 20, ErrorEvents: 50, Reverts: 3,
	})
	if low < 0 || low > 1 {
		t.Errorf("score %f out of [0,1]", low)
	}
	high := InferScore(InferenceSignals{
		Commits: 10, TestsPassed: 50, IssuesResolved: 10, FileMods: 10,
	})
	if high != 1 {
		t.Errorf("saturated score = %f, want clamp to 1", high)
	}
}

func TestSuccessLevels(t *testing.T) {
	cases := map[float64]int{
		0.0: SuccessFailed, 0.39: SuccessFailed,
		0.4: SuccessPartial, 0.69: SuccessPartial,
		0.7: SuccessFull, 1.0: SuccessFull,
	}
	for score, want := range cases {
		if got := SuccessLevel(score); got != want {
			t.Errorf("SuccessLevel(%.2f) = %d, want %d", score, got, want)
		}
	}
}

func TestRevertsAreFlatPenalty(t *testing.T) {
	one := InferScore(InferenceSignals{Reverts: 1})
	many := InferScore(InferenceSignals{Reverts: 9})
	if one != many {
		t.Errorf("revert penalty should be flat: %f vs %f", one, many)
	}
	if math.Abs(one-0.2) > 1e-9 {
		t.Errorf("single revert score = %f, want 0.2", one)
	}
}
