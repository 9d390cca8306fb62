// Package fragility computes the per-file composite risk score. Seven signals
// each contribute a 0-10 sub-score; the weighted sum rounds and clamps into
// the 1-10 fragility scale persisted on the file row.
package fragility

import (
	"fmt"
	"sort"
)

// Signal is one scored risk factor with its human-readable detail.
type Signal struct {
	Score  int     `json:"score"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail"`
}

// Signals is the full per-file breakdown, serialized into
// files.fragility_signals.
type Signals struct {
	Dependents Signal `json:"dependents"`
	Tests      Signal `json:"tests"`
	Velocity   Signal `json:"velocity"`
	Errors     Signal `json:"errors"`
	Exports    Signal `json:"exports"`
	Complexity Signal `json:"complexity"`
	Override   Signal `json:"override"`
}

// Signal weights. They sum to 1.0; the override carries the least weight
// because it is opinion, not observation.
const (
	weightDependents = 0.25
	weightTests      = 0.20
	weightVelocity   = 0.15
	weightErrors     = 0.15
	weightExports    = 0.10
	weightComplexity = 0.10
	weightOverride   = 0.05
)

// Inputs are the raw observations a file is scored from.
type Inputs struct {
	DependentCount int
	HasTests       bool
	ChangesPerWeek float64
	ErrorCount90d  int
	ExportedCount  int
	SymbolCount    int
	ManualScore    int
}

// Compute builds the signal breakdown for one file.
func Compute(in Inputs) Signals {
	return Signals{
		Dependents: Signal{
			Score:  dependentScore(in.DependentCount),
			Weight: weightDependents,
			Detail: fmt.Sprintf("%d dependent files", in.DependentCount),
		},
		Tests: Signal{
			Score:  testScore(in.HasTests, in.DependentCount),
			Weight: weightTests,
			Detail: testDetail(in.HasTests, in.DependentCount),
		},
		Velocity: Signal{
			Score:  velocityScore(in.ChangesPerWeek),
			Weight: weightVelocity,
			Detail: fmt.Sprintf("%.1f changes/week", in.ChangesPerWeek),
		},
		Errors: Signal{
			Score:  errorScore(in.ErrorCount90d),
			Weight: weightErrors,
			Detail: fmt.Sprintf("%d errors in 90 days", in.ErrorCount90d),
		},
		Exports: Signal{
			Score:  exportScore(in.ExportedCount),
			Weight: weightExports,
			Detail: fmt.Sprintf("%d exported symbols", in.ExportedCount),
		},
		Complexity: Signal{
			Score:  complexityScore(in.SymbolCount),
			Weight: weightComplexity,
			Detail: fmt.Sprintf("%d symbols", in.SymbolCount),
		},
		Override: Signal{
			Score:  overrideScore(in.ManualScore),
			Weight: weightOverride,
			Detail: overrideDetail(in.ManualScore),
		},
	}
}

// dependentScore buckets the distinct-caller count.
func dependentScore(n int) int {
	switch {
	case n <= 0:
		return 0
	case n <= 2:
		return 3
	case n <= 5:
		return 5
	case n <= 10:
		return 7
	case n <= 20:
		return 8
	default:
		return 10
	}
}

// testScore is risk from missing coverage, scaled by blast radius.
func testScore(hasTests bool, dependents int) int {
	if hasTests {
		return 0
	}
	switch {
	case dependents >= 5:
		return 10
	case dependents >= 2:
		return 7
	case dependents >= 1:
		return 5
	default:
		return 3
	}
}

func testDetail(hasTests bool, dependents int) string {
	if hasTests {
		return "has test coverage"
	}
	return fmt.Sprintf("no tests, %d dependents", dependents)
}

// velocityScore buckets changes per week over the last 30 days.
func velocityScore(perWeek float64) int {
	switch {
	case perWeek <= 0:
		return 0
	case perWeek <= 2:
		return 3
	case perWeek <= 5:
		return 6
	default:
		return 9
	}
}

// errorScore buckets error events over the last 90 days.
func errorScore(n int) int {
	switch {
	case n <= 0:
		return 0
	case n <= 2:
		return 4
	case n <= 5:
		return 7
	default:
		return 10
	}
}

// exportScore buckets the exported-symbol count (public API surface).
func exportScore(n int) int {
	switch {
	case n <= 2:
		return 0
	case n <= 5:
		return 3
	case n <= 10:
		return 5
	case n <= 20:
		return 7
	default:
		return 9
	}
}

// complexityScore buckets the total symbol count.
func complexityScore(n int) int {
	switch {
	case n <= 5:
		return 0
	case n <= 15:
		return 3
	case n <= 30:
		return 5
	case n <= 50:
		return 7
	default:
		return 9
	}
}

// overrideScore passes a manually-set fragility through.
func overrideScore(manual int) int {
	if manual <= 0 {
		return 0
	}
	if manual > 10 {
		return 10
	}
	return manual
}

func overrideDetail(manual int) string {
	if manual <= 0 {
		return "no manual override"
	}
	return fmt.Sprintf("manual fragility %d", manual)
}

// Composite computes the clamped 1-10 weighted score.
func (s Signals) Composite() int {
	sum := float64(s.Dependents.Score)*s.Dependents.Weight +
		float64(s.Tests.Score)*s.Tests.Weight +
		float64(s.Velocity.Score)*s.Velocity.Weight +
		float64(s.Errors.Score)*s.Errors.Weight +
		float64(s.Exports.Score)*s.Exports.Weight +
		float64(s.Complexity.Score)*s.Complexity.Weight +
		float64(s.Override.Score)*s.Override.Weight
	score := int(sum + 0.5)
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

// Explain lists the top three weighted contributors by detail string.
func (s Signals) Explain() string {
	type contrib struct {
		weighted float64
		detail   string
	}
	all := []contrib{
		{float64(s.Dependents.Score) * s.Dependents.Weight, s.Dependents.Detail},
		{float64(s.Tests.Score) * s.Tests.Weight, s.Tests.Detail},
		{float64(s.Velocity.Score) * s.Velocity.Weight, s.Velocity.Detail},
		{float64(s.Errors.Score) * s.Errors.Weight, s.Errors.Detail},
		{float64(s.Exports.Score) * s.Exports.Weight, s.Exports.Detail},
		{float64(s.Complexity.Score) * s.Complexity.Weight, s.Complexity.Detail},
		{float64(s.Override.Score) * s.Override.Weight, s.Override.Detail},
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].weighted > all[j].weighted })

	out := "risk factors: "
	for i := 0; i < 3 && i < len(all); i++ {
		if i > 0 {
			out += "; "
		}
		out += all[i].detail
	}
	return out
}
