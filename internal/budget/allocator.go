package budget

import (
	"math"

	"github.com/ravnltd/muninn/internal/logging"
)

// Category is one slot of the fixed budget vector.
type Category string

const (
	Contradictions   Category = "contradictions"
	CriticalWarnings Category = "criticalWarnings"
	Strategies       Category = "strategies"
	Decisions        Category = "decisions"
	Learnings        Category = "learnings"
	FileContext      Category = "fileContext"
	ErrorFixes       Category = "errorFixes"
	Reserve          Category = "reserve"
)

// Categories lists every slot in a stable order.
var Categories = []Category{
	Contradictions, CriticalWarnings, Strategies, Decisions,
	Learnings, FileContext, ErrorFixes, Reserve,
}

// defaults are the baseline token counts per category.
var defaults = map[Category]int{
	Contradictions:   250,
	CriticalWarnings: 300,
	Strategies:       200,
	Decisions:        300,
	Learnings:        300,
	FileContext:      300,
	ErrorFixes:       150,
	Reserve:          200,
}

// Budget bounds. Every adjusted value clamps into this range.
const (
	MinBudget = 100
	MaxBudget = 800
)

// Budgets is a resolved per-category allocation.
type Budgets map[Category]int

// ImpactStat is the feedback summary for one context kind.
type ImpactStat struct {
	Helped     int
	Irrelevant int
	Total      int
}

// impactCategory maps feedback kind names onto budget categories.
var impactCategory = map[string]Category{
	"decisions":  Decisions,
	"learnings":  Learnings,
	"files":      FileContext,
	"error_fixes": ErrorFixes,
	"warnings":   CriticalWarnings,
	"strategies": Strategies,
}

// ImpactKind maps an injection context type onto the allocator's kind names
// ({decisions, learnings, files, error_fixes, warnings, strategies}).
func ImpactKind(contextType string) string {
	switch contextType {
	case "decision", "contradiction":
		return "decisions"
	case "learning":
		return "learnings"
	case "file", "cochanger":
		return "files"
	case "error_fix":
		return "error_fixes"
	case "warning":
		return "warnings"
	case "strategy":
		return "strategies"
	default:
		return contextType
	}
}

// KindCategory resolves an impact kind to its budget category.
func KindCategory(kind string) (Category, bool) {
	cat, ok := impactCategory[kind]
	return cat, ok
}

// DefaultFor returns the default budget for a category.
func DefaultFor(cat Category) int {
	return defaults[cat]
}

// Trajectory is the recent-session behavior label with its confidence.
type Trajectory struct {
	Pattern    string  // exploration | failing | stuck | confident
	Confidence float64 // adjustments require >= 0.5
}

// Inputs carries the three feedback signals plus stored overrides.
type Inputs struct {
	// Overrides replace defaults before any adjustment; keyed by category name.
	Overrides map[string]int
	// Impact holds per-kind helped/irrelevant stats.
	Impact map[string]ImpactStat
	// StaleItemIDs is the set of knowledge items past their review date.
	StaleItemIDs []int64
	// Trajectory is the current behavior pattern.
	Trajectory Trajectory
}

// Allocate computes the budget vector: defaults, overrides, then the
// impact, staleness and trajectory adjustments in that order.
func Allocate(in Inputs) Budgets {
	log := logging.Get(logging.CategoryBudget)

	out := make(Budgets, len(defaults))
	for cat, v := range defaults {
		out[cat] = v
	}
	for name, v := range in.Overrides {
		cat := Category(name)
		if _, known := defaults[cat]; known {
			out[cat] = clamp(v)
		}
	}

	// Impact: enough samples, then punish irrelevance before rewarding help.
	for kind, stat := range in.Impact {
		cat, known := impactCategory[kind]
		if !known || stat.Total < 5 {
			continue
		}
		irrelevantRate := float64(stat.Irrelevant) / float64(stat.Total)
		helpedRate := float64(stat.Helped) / float64(stat.Total)
		switch {
		case irrelevantRate > 0.5:
			out[cat] = scale(out[cat], 0.8)
			log.Debug("impact: %s irrelevant %.2f, shrinking to %d", kind, irrelevantRate, out[cat])
		case helpedRate > 0.6:
			out[cat] = scale(out[cat], 1.2)
			log.Debug("impact: %s helped %.2f, growing to %d", kind, helpedRate, out[cat])
		}
	}

	// Staleness: a pile of overdue items means the stored knowledge is less
	// trustworthy; shrink the knowledge-heavy categories.
	if len(in.StaleItemIDs) >= 5 {
		out[Decisions] = scale(out[Decisions], 0.85)
		out[Learnings] = scale(out[Learnings], 0.85)
		log.Debug("staleness: %d stale items, decisions=%d learnings=%d", len(in.StaleItemIDs), out[Decisions], out[Learnings])
	}

	// Trajectory: only act on a confident read of the session.
	if in.Trajectory.Confidence >= 0.5 {
		switch in.Trajectory.Pattern {
		case "exploration":
			out[FileContext] = scale(out[FileContext], 1.4)
			out[Strategies] = scale(out[Strategies], 1.2)
		case "failing":
			out[ErrorFixes] = scale(out[ErrorFixes], 1.5)
			out[CriticalWarnings] = scale(out[CriticalWarnings], 1.3)
		case "stuck":
			out[Strategies] = scale(out[Strategies], 1.5)
			out[FileContext] = scale(out[FileContext], 1.3)
		case "confident":
			out[Reserve] = scale(out[Reserve], 0.7)
		}
	}

	return out
}

// Total sums the vector.
func (b Budgets) Total() int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

func scale(v int, m float64) int {
	return clamp(int(math.Round(float64(v) * m)))
}

func clamp(v int) int {
	if v < MinBudget {
		return MinBudget
	}
	if v > MaxBudget {
		return MaxBudget
	}
	return v
}
