// Package router composes collectors per intent into a single bounded
// context result, then applies the budget allocator's truncation.
package router

import (
	"fmt"

	"github.com/ravnltd/muninn/internal/budget"
	"github.com/ravnltd/muninn/internal/collect"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Router answers context requests for one project.
type Router struct {
	store *store.Store
}

// New builds a router over the given store.
func New(s *store.Store) *Router {
	return &Router{store: s}
}

// Intents supported by RouteContext.
const (
	IntentEdit    = "edit"
	IntentRead    = "read"
	IntentDebug   = "debug"
	IntentExplore = "explore"
	IntentPlan    = "plan"
)

// RouteContext runs the intent's collector composition, then injects the
// allocator's intelligence: per-category truncation, the trajectory pattern
// and the stale-item set.
func (r *Router) RouteContext(project store.ProjectRow, req collect.Request) (*collect.Result, error) {
	log := logging.Get(logging.CategoryRouter)

	composition, err := r.compose(req)
	if err != nil {
		return nil, err
	}

	result := collect.NewResult(req.Intent)
	cc := &collect.Context{
		Store:     r.store,
		ProjectID: project.ID,
		Request:   req,
		Result:    result,
	}
	for _, collector := range composition {
		if err := collector(cc); err != nil {
			// Collectors are tolerant; a hard error here is adapter-level and
			// ends the request.
			return nil, err
		}
	}

	inputs := r.allocatorInputs(project.ID)
	budgets := budget.Allocate(inputs)
	truncate(result, budgets)
	result.TrajectoryPattern = inputs.Trajectory.Pattern
	result.StaleItemIDs = inputs.StaleItemIDs

	log.Debug("routed %s: %d items, %d files, %d warnings, %d tokens, sources=%v",
		req.Intent, len(result.Context), len(result.Files), len(result.Warnings),
		result.Meta.TokensUsed, result.Meta.SourcesQueried)
	return result, nil
}

// compose returns the collector sequence for an intent. Optional stages only
// join when their inputs are present.
func (r *Router) compose(req collect.Request) ([]collect.Collector, error) {
	hasQuery := req.Query != ""
	hasTask := req.Task != ""
	hasFiles := len(req.Files) > 0

	switch req.Intent {
	case IntentEdit:
		return []collect.Collector{
			collect.CollectFileInfo,
			collect.CollectTestHistory,
			collect.CollectCochangers,
			collect.CollectContradictions,
			collect.CollectFailedDecisions,
			collect.CollectFileDecisions,
			collect.CollectFileLearnings,
			collect.CollectFileIssues,
		}, nil
	case IntentRead:
		out := []collect.Collector{collect.CollectFileInfo}
		if hasQuery {
			out = append(out, collect.CollectQueryResults)
		} else {
			out = append(out, collect.CollectFileDecisions, collect.CollectFileLearnings)
		}
		return out, nil
	case IntentDebug:
		out := []collect.Collector{
			collect.CollectErrorFixes,
			collect.CollectRecentErrors,
		}
		if hasQuery {
			out = append(out, collect.CollectQueryResults)
		}
		if hasFiles {
			out = append(out, collect.CollectFileInfo, collect.CollectTestHistory)
		}
		return out, nil
	case IntentExplore:
		var out []collect.Collector
		if hasQuery {
			out = append(out, collect.CollectQueryResults)
		}
		if hasQuery || hasTask {
			out = append(out, collect.CollectSuggestedFiles)
		}
		return out, nil
	case IntentPlan:
		out := []collect.Collector{
			collect.CollectContradictions,
			collect.CollectFailedDecisions,
		}
		if hasQuery {
			out = append(out, collect.CollectQueryResults)
		}
		if hasQuery || hasTask {
			out = append(out, collect.CollectSuggestedFiles)
		}
		if hasFiles {
			out = append(out, collect.CollectFileInfo, collect.CollectCochangers)
		}
		out = append(out, collect.CollectOpenIssues)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown intent %q", req.Intent)
	}
}

// allocatorInputs gathers the allocator's feedback signals. Every lookup is
// tolerant: a missing table yields the default behavior.
func (r *Router) allocatorInputs(projectID int64) budget.Inputs {
	in := budget.Inputs{}

	if recs, err := r.store.BudgetRecommendations(projectID); err == nil {
		in.Overrides = make(map[string]int, len(recs))
		for kind, rec := range recs {
			in.Overrides[kind] = rec.RecommendedBudget
		}
	} else {
		logging.Suppress("router.overrides", err)
	}

	if stats, err := r.store.InjectionStatsRecent(projectID, 30); err == nil {
		in.Impact = make(map[string]budget.ImpactStat, len(stats))
		for _, st := range stats {
			in.Impact[budget.ImpactKind(st.ContextType)] = budget.ImpactStat{
				Helped:     int(st.Used),
				Irrelevant: int(st.Total - st.Used),
				Total:      int(st.Total),
			}
		}
	} else {
		logging.Suppress("router.impact", err)
	}

	if stale, err := r.store.StaleLearningIDs(projectID); err == nil {
		in.StaleItemIDs = stale
	} else {
		logging.Suppress("router.staleness", err)
	}

	in.Trajectory = DetectTrajectory(r.store, projectID)
	return in
}

// itemCategory maps item types onto budget categories for truncation.
func itemCategory(itemType string) budget.Category {
	switch itemType {
	case "contradiction":
		return budget.Contradictions
	case "decision":
		return budget.Decisions
	case "learning":
		return budget.Learnings
	case "file":
		return budget.FileContext
	case "error_fix":
		return budget.ErrorFixes
	case "strategy":
		return budget.Strategies
	default:
		// issues, test history, cochangers and anything new draw from the
		// reserve.
		return budget.Reserve
	}
}

// truncate drops items past each category's token budget, preserving
// collection order inside a category, then recomputes the token total.
func truncate(result *collect.Result, budgets budget.Budgets) {
	spent := make(map[budget.Category]int, len(budgets))

	kept := result.Context[:0]
	for _, it := range result.Context {
		cat := itemCategory(it.Type)
		if spent[cat]+it.Tokens > budgets[cat] {
			continue
		}
		spent[cat] += it.Tokens
		kept = append(kept, it)
	}
	result.Context = kept

	warnBudget := budgets[budget.CriticalWarnings]
	warnSpent := 0
	keptWarnings := result.Warnings[:0]
	for _, w := range result.Warnings {
		cost := budget.EstimateTokens(w)
		if warnSpent+cost > warnBudget {
			continue
		}
		warnSpent += cost
		keptWarnings = append(keptWarnings, w)
	}
	result.Warnings = keptWarnings

	total := warnSpent
	for _, v := range spent {
		total += v
	}
	for _, f := range result.Files {
		total += budget.EstimateAll(f.Path, f.Purpose, f.Explanation)
	}
	result.Meta.TokensUsed = total
}
