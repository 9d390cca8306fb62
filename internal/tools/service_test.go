package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravnltd/muninn/internal/store"
	"github.com/ravnltd/muninn/internal/validate"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	a := store.NewLocalAdapter(":memory:", "")
	require.NoError(t, a.Init())
	t.Cleanup(func() { a.Close() })
	sv, err := NewService(store.New(a), "/tmp/proj")
	require.NoError(t, err)
	return sv
}

func TestSessionLifecycleRecordsToolCalls(t *testing.T) {
	sv := newTestService(t)
	ctx := context.Background()

	started, err := sv.Session(ctx, &validate.SessionRequest{Action: "start", Goal: "wire the cache"})
	require.NoError(t, err)
	require.NotZero(t, started.SessionID)

	_, err = sv.FileAdd(&validate.FileAddRequest{Path: "cache/lru.go", Purpose: "LRU cache"})
	require.NoError(t, err)
	_, err = sv.DecisionAdd(&validate.DecisionAddRequest{Title: "cap cache at 10k", Decision: "bound memory"})
	require.NoError(t, err)
	_, err = sv.Check(&validate.CheckRequest{Files: []string{"cache/lru.go"}})
	require.NoError(t, err)

	calls, err := sv.store.ToolCalls(started.SessionID)
	require.NoError(t, err)
	require.Len(t, calls, 3)
	require.Equal(t, "muninn_file_add", calls[0].ToolName)

	ended, err := sv.Session(ctx, &validate.SessionRequest{Action: "end", ID: started.SessionID})
	require.NoError(t, err)
	require.Equal(t, started.SessionID, ended.SessionID)
}

func TestCheckSurfacesInjections(t *testing.T) {
	sv := newTestService(t)
	ctx := context.Background()

	_, err := sv.DecisionAdd(&validate.DecisionAddRequest{
		Title: "serialize writes", Decision: "single writer goroutine", Affects: []string{"store/db.go"},
	})
	require.NoError(t, err)

	started, err := sv.Session(ctx, &validate.SessionRequest{Action: "start"})
	require.NoError(t, err)

	result, err := sv.Check(&validate.CheckRequest{Files: []string{"store/db.go"}})
	require.NoError(t, err)
	require.NotEmpty(t, result.ItemsOfType("decision"))

	injections, err := sv.store.Injections(started.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, injections)
}

func TestValidationGate(t *testing.T) {
	sv := newTestService(t)

	_, err := sv.Query(&validate.QueryRequest{Text: "drop `tables`"})
	require.Error(t, err)
	var ve *validate.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = sv.FileAdd(&validate.FileAddRequest{Path: "../../etc/passwd"})
	require.Error(t, err)
}

func TestPassthroughGuardAndApprove(t *testing.T) {
	sv := newTestService(t)

	// Non-destructive statements pass straight through.
	out, err := sv.Passthrough(&validate.PassthroughRequest{Command: "CREATE TABLE scratch (x INTEGER)"})
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	// Destructive commands park behind an operation id.
	out, err = sv.Passthrough(&validate.PassthroughRequest{Command: "DROP TABLE scratch"})
	require.NoError(t, err)
	require.Contains(t, out, "requires approval")
	opID := strings.TrimSpace(strings.TrimPrefix(out, "operation requires approval:"))

	_, err = sv.Approve(&validate.ApproveRequest{OperationID: opID})
	require.NoError(t, err)

	// The id is single-use.
	_, err = sv.Approve(&validate.ApproveRequest{OperationID: opID})
	require.Error(t, err)
}

func TestGlobalLearningRoutesToGlobalStore(t *testing.T) {
	sv := newTestService(t)

	ga := store.NewLocalAdapter(":memory:", "")
	require.NoError(t, ga.Init())
	t.Cleanup(func() { ga.Close() })
	global := store.New(ga)
	require.NoError(t, sv.AttachGlobal(global))

	id, err := sv.LearnAdd(&validate.LearnAddRequest{
		Title: "prefer errgroup for fan-out", Content: "bounded concurrency with error propagation",
		Global: true,
	})
	require.NoError(t, err)

	l, err := global.GetLearning(id)
	require.NoError(t, err)
	require.Equal(t, "prefer errgroup for fan-out", l.Title)

	// The project-local store stays clean.
	_, err = sv.store.GetLearning(id)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestIssueLifecycle(t *testing.T) {
	sv := newTestService(t)

	id, err := sv.Issue(&validate.IssueRequest{Action: "add", Title: "slow cold start", Severity: 6})
	require.NoError(t, err)

	_, err = sv.Issue(&validate.IssueRequest{Action: "resolve", ID: id, Resolution: "lazy init"})
	require.NoError(t, err)

	// Double-resolve is NotFound.
	_, err = sv.Issue(&validate.IssueRequest{Action: "resolve", ID: id})
	require.ErrorIs(t, err, store.ErrNotFound)
}
