package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravnltd/muninn/internal/collect"
	"github.com/ravnltd/muninn/internal/store"
)

func newTestProject(t *testing.T) (*store.Store, store.ProjectRow) {
	t.Helper()
	a := store.NewLocalAdapter(":memory:", "")
	require.NoError(t, a.Init())
	t.Cleanup(func() { a.Close() })
	s := store.New(a)
	p, err := s.EnsureProject("/tmp/proj")
	require.NoError(t, err)
	return s, p
}

// Edit intent with files and no query reports exactly files, decisions,
// learnings in that order; issues join only when an open issue matches.
func TestEditIntentSourceOrdering(t *testing.T) {
	s, p := newTestProject(t)
	_, err := s.UpsertFile(p.ID, "a.ts", "routing table", 0)
	require.NoError(t, err)
	_, err = s.UpsertFile(p.ID, "b.ts", "handlers", 0)
	require.NoError(t, err)

	r := New(s)
	result, err := r.RouteContext(p, collect.Request{Intent: "edit", Files: []string{"a.ts", "b.ts"}})
	require.NoError(t, err)
	require.Equal(t, []string{"files", "decisions", "learnings"}, result.Meta.SourcesQueried)
	require.Len(t, result.Files, 2)

	// An open issue naming the file adds "issues" at the tail.
	_, err = s.InsertIssue(p.ID, "a.ts leaks handles", "socket cleanup missing in a", "bug", 6, "")
	require.NoError(t, err)
	result, err = r.RouteContext(p, collect.Request{Intent: "edit", Files: []string{"a.ts", "b.ts"}})
	require.NoError(t, err)
	require.Equal(t, []string{"files", "decisions", "learnings", "issues"}, result.Meta.SourcesQueried)
}

func TestFragileFileProducesWarning(t *testing.T) {
	s, p := newTestProject(t)
	_, err := s.UpsertFile(p.ID, "core.go", "fragile core", 9)
	require.NoError(t, err)

	result, err := New(s).RouteContext(p, collect.Request{Intent: "edit", Files: []string{"core.go"}})
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	require.Contains(t, result.Warnings[0], "core.go")
	require.Contains(t, result.Warnings[0], "9/10")
}

func TestReadIntentQueryBranch(t *testing.T) {
	s, p := newTestProject(t)
	_, err := s.InsertDecision(p.ID, "use websockets", "stream updates over websockets", "latency", nil)
	require.NoError(t, err)

	// With a query: queryResults branch.
	result, err := New(s).RouteContext(p, collect.Request{Intent: "read", Query: "websockets"})
	require.NoError(t, err)
	require.Contains(t, result.Meta.SourcesQueried, "query")
	require.NotEmpty(t, result.ItemsOfType("decision"))

	// Without: decisions/learnings branch.
	result, err = New(s).RouteContext(p, collect.Request{Intent: "read", Files: []string{"x.go"}})
	require.NoError(t, err)
	require.Contains(t, result.Meta.SourcesQueried, "decisions")
	require.Contains(t, result.Meta.SourcesQueried, "learnings")
	require.NotContains(t, result.Meta.SourcesQueried, "query")
}

func TestDebugIntentSurfacesErrorFixes(t *testing.T) {
	s, p := newTestProject(t)
	_, err := s.UpsertErrorFix(p.ID, "nil pointer dereference in router", "guard against nil store")
	require.NoError(t, err)

	result, err := New(s).RouteContext(p, collect.Request{Intent: "debug", Query: "nil pointer"})
	require.NoError(t, err)
	fixes := result.ItemsOfType("error_fix")
	require.NotEmpty(t, fixes)
	require.Contains(t, fixes[0].Content, "guard against nil store")
}

func TestUnknownIntentRejected(t *testing.T) {
	s, p := newTestProject(t)
	_, err := New(s).RouteContext(p, collect.Request{Intent: "meditate"})
	require.Error(t, err)
}

func TestPlanIntentIncludesOpenIssues(t *testing.T) {
	s, p := newTestProject(t)
	_, err := s.InsertIssue(p.ID, "migration drift", "schema differs between envs", "bug", 9, "")
	require.NoError(t, err)

	result, err := New(s).RouteContext(p, collect.Request{Intent: "plan", Task: "clean up storage layer"})
	require.NoError(t, err)
	require.Contains(t, result.Meta.SourcesQueried, "issues")
	// Severity 9 also warns.
	require.NotEmpty(t, result.Warnings)
}

func TestTruncationRespectsBudgets(t *testing.T) {
	s, p := newTestProject(t)
	// Pin the decisions budget to the floor so a pile of verbose decisions
	// cannot all survive.
	require.NoError(t, s.UpsertBudgetRecommendation(p.ID, "decisions", 100, 0))
	long := make([]byte, 800)
	for i := range long {
		long[i] = 'd'
	}
	for i := 0; i < 5; i++ {
		_, err := s.InsertDecision(p.ID, "decision about caching", string(long), "reasons", nil)
		require.NoError(t, err)
	}

	result, err := New(s).RouteContext(p, collect.Request{Intent: "read"})
	require.NoError(t, err)
	total := 0
	for _, it := range result.ItemsOfType("decision") {
		total += it.Tokens
	}
	require.LessOrEqual(t, total, 100)
}
