package outcome

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Strategy distillation: fold recent reasoning traces into the strategy
// catalog, and rank strategies for query-time matching.

const (
	distillTraceWindow = 100
	distillMinTraces   = 3
	distillMinSuccess  = 0.6
	matchPoolSize      = 10
)

// Distiller groups traces by strategy tag and maintains the catalog.
type Distiller struct {
	store *store.Store
}

// NewDistiller builds a distiller over the given store.
func NewDistiller(s *store.Store) *Distiller {
	return &Distiller{store: s}
}

// Distill runs one distillation pass over the last traces. A tag needs enough
// observations and a healthy success rate before it earns a catalog entry;
// existing entries smooth toward the new observation.
func (d *Distiller) Distill(projectID int64) error {
	log := logging.Get(logging.CategoryOutcome)

	traces, err := d.store.RecentTraces(projectID, distillTraceWindow)
	if err != nil {
		return err
	}

	type group struct {
		traces    []store.TraceRow
		successes int
		duration  int64
	}
	groups := make(map[string]*group)
	for _, t := range traces {
		for _, tag := range t.StrategyTags {
			g := groups[tag]
			if g == nil {
				g = &group{}
				groups[tag] = g
			}
			g.traces = append(g.traces, t)
			if t.Success {
				g.successes++
			}
			g.duration += t.DurationMs
		}
	}

	for tag, g := range groups {
		n := len(g.traces)
		if n < distillMinTraces {
			continue
		}
		observed := float64(g.successes) / float64(n)
		if observed < distillMinSuccess {
			continue
		}
		avgDuration := g.duration / int64(n)
		traceIDs := make([]int64, 0, n)
		for _, t := range g.traces {
			traceIDs = append(traceIDs, t.ID)
		}

		existing, err := d.store.GetStrategy(projectID, tag)
		if err != nil {
			// New entry: the observation stands as-is.
			entry := store.StrategyRow{
				Name:           tag,
				Description:    describeStrategy(tag, g.traces),
				SuccessRate:    observed,
				TimesUsed:      int64(n),
				AvgDurationMs:  avgDuration,
				SourceTraceIDs: traceIDs,
			}
			if err := d.store.UpsertStrategy(projectID, entry); err != nil {
				logging.Suppress("distill.insert", err)
				continue
			}
			log.Debug("new strategy %q: rate=%.2f over %d traces", tag, observed, n)
			continue
		}

		// Same stabilized update as learning confidence: later observations
		// move an established strategy less.
		smoothed := existing.SuccessRate + (observed-existing.SuccessRate)/math.Sqrt(float64(existing.TimesUsed)+1)
		entry := existing
		entry.SuccessRate = smoothed
		entry.TimesUsed++
		entry.AvgDurationMs = (existing.AvgDurationMs + avgDuration) / 2
		entry.SourceTraceIDs = traceIDs
		if err := d.store.UpsertStrategy(projectID, entry); err != nil {
			logging.Suppress("distill.update", err)
			continue
		}
		log.Debug("updated strategy %q: rate %.2f -> %.2f", tag, existing.SuccessRate, smoothed)
	}
	return nil
}

func describeStrategy(tag string, traces []store.TraceRow) string {
	// The most recent trace's tool sequence illustrates the shape.
	example := ""
	if len(traces) > 0 {
		seq := traces[0].ToolSequence
		if len(seq) > 6 {
			seq = seq[:6]
		}
		example = strings.Join(seq, " -> ")
	}
	return fmt.Sprintf("tool pattern %q, e.g. %s", tag, example)
}

// MatchStrategies ranks the catalog for a query: pool the top entries by
// success rate and usage, then re-rank by keyword relevance (name hits score
// double), and cut to limit.
func (d *Distiller) MatchStrategies(projectID int64, query string, limit int) ([]store.StrategyRow, error) {
	pool, err := d.store.TopStrategies(projectID, matchPoolSize)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(pool) {
		limit = len(pool)
	}

	words := strings.Fields(strings.ToLower(query))
	score := func(st store.StrategyRow) int {
		name := strings.ToLower(st.Name)
		desc := strings.ToLower(st.Description)
		total := 0
		for _, w := range words {
			if strings.Contains(name, w) {
				total += 2
			}
			if strings.Contains(desc, w) {
				total++
			}
		}
		return total
	}

	sort.SliceStable(pool, func(i, j int) bool { return score(pool[i]) > score(pool[j]) })
	return pool[:limit], nil
}
