package outcome

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravnltd/muninn/internal/store"
)

func seedTracedSessions(t *testing.T, s *store.Store, p store.ProjectRow, n int, succeed bool) {
	t.Helper()
	pipe := NewPipeline(s)
	for i := 0; i < n; i++ {
		sid, err := s.StartSession(p.ID, "goal")
		require.NoError(t, err)
		_, err = s.InsertToolCall(p.ID, sid, "muninn_query", "find the hot path", nil, true)
		require.NoError(t, err)
		_, err = s.InsertToolCall(p.ID, sid, "edit", "apply", []string{"core/hot.go"}, true)
		require.NoError(t, err)
		_, err = s.InsertToolCall(p.ID, sid, "test", "", nil, true)
		require.NoError(t, err)
		if succeed {
			require.NoError(t, s.InsertCommit(p.ID, sid, "sha", "msg"))
			require.NoError(t, s.InsertTestResult(p.ID, sid, "pass", 10, 0))
		} else {
			require.NoError(t, s.InsertRevert(p.ID, sid, "rolled back"))
			require.NoError(t, s.InsertTestResult(p.ID, sid, "fail", 0, 10))
		}
		_, err = pipe.RunSessionEnd(context.Background(), p.ID, sid, "", ExplicitUnset)
		require.NoError(t, err)
	}
}

func TestDistillPromotesSuccessfulTag(t *testing.T) {
	s, p := newTestStore(t)
	seedTracedSessions(t, s, p, 4, true)

	d := NewDistiller(s)
	require.NoError(t, d.Distill(p.ID))

	st, err := s.GetStrategy(p.ID, "search-first")
	require.NoError(t, err)
	require.Equal(t, 1.0, st.SuccessRate)
	require.EqualValues(t, 4, st.TimesUsed)
	require.Len(t, st.SourceTraceIDs, 4)
}

func TestDistillSkipsFailingTag(t *testing.T) {
	s, p := newTestStore(t)
	seedTracedSessions(t, s, p, 4, false)

	require.NoError(t, NewDistiller(s).Distill(p.ID))
	_, err := s.GetStrategy(p.ID, "search-first")
	require.Error(t, err, "a failing tag must not enter the catalog")
}

func TestDistillSmoothsExistingEntry(t *testing.T) {
	s, p := newTestStore(t)
	require.NoError(t, s.UpsertStrategy(p.ID, store.StrategyRow{
		Name:        "search-first",
		SuccessRate: 0.5,
		TimesUsed:   3,
	}))
	seedTracedSessions(t, s, p, 4, true)

	require.NoError(t, NewDistiller(s).Distill(p.ID))
	st, err := s.GetStrategy(p.ID, "search-first")
	require.NoError(t, err)
	// new = 0.5 + (1.0-0.5)/sqrt(3+1) = 0.75
	require.InDelta(t, 0.75, st.SuccessRate, 1e-9)
	require.EqualValues(t, 4, st.TimesUsed)
}

func TestMatchStrategiesKeywordRerank(t *testing.T) {
	s, p := newTestStore(t)
	require.NoError(t, s.UpsertStrategy(p.ID, store.StrategyRow{
		Name: "error-chase", Description: "chase the stack trace", SuccessRate: 0.9, TimesUsed: 10,
	}))
	require.NoError(t, s.UpsertStrategy(p.ID, store.StrategyRow{
		Name: "search-first", Description: "query before editing", SuccessRate: 0.95, TimesUsed: 20,
	}))

	got, err := NewDistiller(s).MatchStrategies(p.ID, "error stack", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "error-chase", got[0].Name)
}
