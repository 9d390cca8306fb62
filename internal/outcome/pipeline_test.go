package outcome

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravnltd/muninn/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, store.ProjectRow) {
	t.Helper()
	a := store.NewLocalAdapter(":memory:", "")
	require.NoError(t, a.Init())
	t.Cleanup(func() { a.Close() })
	s := store.New(a)
	p, err := s.EnsureProject("/tmp/proj")
	require.NoError(t, err)
	return s, p
}

func TestPipelineInfersAndPersists(t *testing.T) {
	s, p := newTestStore(t)
	sid, err := s.StartSession(p.ID, "fix the websocket handler")
	require.NoError(t, err)

	_, err = s.InsertToolCall(p.ID, sid, "muninn_query", "websocket handler", nil, true)
	require.NoError(t, err)
	_, err = s.InsertToolCall(p.ID, sid, "edit", "patch reconnect", []string{"net/ws.go"}, true)
	require.NoError(t, err)
	_, err = s.InsertToolCall(p.ID, sid, "test", "", nil, true)
	require.NoError(t, err)
	require.NoError(t, s.InsertTestResult(p.ID, sid, "pass", 12, 0))
	require.NoError(t, s.InsertCommit(p.ID, sid, "abc123", "fix reconnect"))

	res, err := NewPipeline(s).RunSessionEnd(context.Background(), p.ID, sid, "", ExplicitUnset)
	require.NoError(t, err)
	require.True(t, res.Inferred)
	require.Equal(t, SuccessFull, res.Success)
	require.Equal(t, "success", res.Outcome)

	session, err := s.GetSession(sid)
	require.NoError(t, err)
	require.True(t, session.Ended)
	require.Equal(t, SuccessFull, session.Success)
	require.Contains(t, session.FilesTouched, "net/ws.go")

	traces, err := s.RecentTraces(p.ID, 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	require.Equal(t, sid, traces[0].SessionID)
}

func TestPipelineExplicitOverride(t *testing.T) {
	s, p := newTestStore(t)
	sid, err := s.StartSession(p.ID, "attempted refactor")
	require.NoError(t, err)
	require.NoError(t, s.InsertTestResult(p.ID, sid, "pass", 10, 0))

	res, err := NewPipeline(s).RunSessionEnd(context.Background(), p.ID, sid, "abandoned midway", SuccessFailed)
	require.NoError(t, err)
	require.False(t, res.Inferred)
	require.Equal(t, SuccessFailed, res.Success)
	require.Equal(t, "abandoned midway", res.Outcome)
}

func TestPipelineIdempotent(t *testing.T) {
	s, p := newTestStore(t)
	sid, err := s.StartSession(p.ID, "goal")
	require.NoError(t, err)

	lid, err := s.InsertLearning(p.ID, "use context timeouts", "wrap calls", "pattern", "", 5.0, false, "")
	require.NoError(t, err)
	require.NoError(t, s.InsertInjection(p.ID, sid, "learning", lid, 0.8))
	require.NoError(t, s.InsertCommit(p.ID, sid, "sha", "msg"))

	pipe := NewPipeline(s)
	first, err := pipe.RunSessionEnd(context.Background(), p.ID, sid, "", ExplicitUnset)
	require.NoError(t, err)

	afterFirst, err := s.GetLearning(lid)
	require.NoError(t, err)

	second, err := pipe.RunSessionEnd(context.Background(), p.ID, sid, "", ExplicitUnset)
	require.NoError(t, err)
	require.Equal(t, first.Success, second.Success)

	afterSecond, err := s.GetLearning(lid)
	require.NoError(t, err)
	require.Equal(t, afterFirst.Confidence, afterSecond.Confidence)
	require.Equal(t, afterFirst.TimesApplied, afterSecond.TimesApplied)

	traces, err := s.RecentTraces(p.ID, 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
}

func TestPipelineReinforcesTouchedLearnings(t *testing.T) {
	s, p := newTestStore(t)
	sid, err := s.StartSession(p.ID, "goal")
	require.NoError(t, err)

	lid, err := s.InsertLearning(p.ID, "prefer table tests", "table tests scale", "pattern", "", 5.0, false, "")
	require.NoError(t, err)
	// Surface the learning, then make the session succeed.
	require.NoError(t, s.InsertInjection(p.ID, sid, "learning", lid, 0.9))
	require.NoError(t, s.InsertCommit(p.ID, sid, "sha", "msg"))
	require.NoError(t, s.InsertTestResult(p.ID, sid, "pass", 5, 0))
	for i := 0; i < 3; i++ {
		_, err = s.InsertToolCall(p.ID, sid, "edit", "apply", []string{"x.go"}, true)
		require.NoError(t, err)
	}

	_, err = NewPipeline(s).RunSessionEnd(context.Background(), p.ID, sid, "", ExplicitUnset)
	require.NoError(t, err)

	l, err := s.GetLearning(lid)
	require.NoError(t, err)
	// times_applied was 0: positive step is the full 0.3.
	require.InDelta(t, 5.3, l.Confidence, 1e-9)
	require.EqualValues(t, 1, l.TimesApplied)
}

func TestABAccountingThroughPipeline(t *testing.T) {
	s, p := newTestStore(t)
	control := `{"decisions": 350}`
	variant := `{"decisions": 500}`
	_, err := s.CreateABTest(p.ID, "decisions-budget", control, variant, "outcome", 1)
	require.NoError(t, err)

	pipe := NewPipeline(s)
	// Two sessions, one per arm. Even session ids are control.
	for i := 0; i < 2; i++ {
		sid, err := s.StartSession(p.ID, "goal")
		require.NoError(t, err)
		if AssignArm(sid) == "variant" {
			// Make the variant arm's sessions succeed harder.
			require.NoError(t, s.InsertCommit(p.ID, sid, "sha", "msg"))
			require.NoError(t, s.InsertTestResult(p.ID, sid, "pass", 5, 0))
		}
		_, err = pipe.RunSessionEnd(context.Background(), p.ID, sid, "", ExplicitUnset)
		require.NoError(t, err)
	}

	rows, err := s.Adapter().All("SELECT * FROM ab_tests")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "concluded", rows[0].Str("status"))

	recs, err := s.BudgetRecommendations(p.ID)
	require.NoError(t, err)
	require.Contains(t, recs, "decisions")
	require.Equal(t, 500, recs["decisions"].RecommendedBudget)
}
