package outcome

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ravnltd/muninn/internal/store"
)

func call(name, summary string, files ...string) store.ToolCallRow {
	return store.ToolCallRow{ToolName: name, InputSummary: summary, FilesInvolved: files, Success: true}
}

func TestExtractTraceTooShort(t *testing.T) {
	calls := []store.ToolCallRow{call("muninn_query", "find router"), call("read", "")}
	if got := ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull); got != nil {
		t.Fatal("expected nil trace for a session under three calls")
	}
}

func TestProblemSignature(t *testing.T) {
	calls := []store.ToolCallRow{
		call("muninn_query", "debug flaky websocket reconnect", "net/ws.go"),
		call("read", "inspect handshake logic", "net/ws.go"),
		call("edit", "", "net/ws.go"),
	}
	trace := ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull)
	if trace == nil {
		t.Fatal("expected a trace")
	}
	sig := strings.Join(trace.ProblemSignature, " ")
	for _, want := range []string{"debug", "flaky", "websocket", "reconnect"} {
		if !strings.Contains(sig, want) {
			t.Errorf("signature missing %q: %v", want, trace.ProblemSignature)
		}
	}
	if len(trace.ProblemSignature) > 5 {
		t.Errorf("signature over cap: %v", trace.ProblemSignature)
	}
}

func TestDeadEndDetection(t *testing.T) {
	calls := []store.ToolCallRow{
		call("read", "", "a.go"),
		call("read", "", "b.go"),
		call("read", "", "c.go"),
		call("read", "", "a.go"), // back to a.go after two intervening calls
	}
	trace := ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull)
	if len(trace.DeadEnds) != 1 {
		t.Fatalf("dead ends = %v, want one backtrack", trace.DeadEnds)
	}
	if !strings.Contains(trace.DeadEnds[0], "Backtrack to a.go after: read -> read") {
		t.Errorf("unexpected dead end: %s", trace.DeadEnds[0])
	}

	// One intervening call is a normal re-read, not a backtrack.
	calls = []store.ToolCallRow{
		call("read", "", "a.go"),
		call("read", "", "b.go"),
		call("read", "", "a.go"),
	}
	trace = ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull)
	if len(trace.DeadEnds) != 0 {
		t.Errorf("short gap should not be a dead end: %v", trace.DeadEnds)
	}
}

func TestHypothesisChain(t *testing.T) {
	calls := []store.ToolCallRow{
		call("read", "", "net/ws.go"),
		call("read", "", "net/conn.go"),
		call("read", "", "store/db.go"),
		call("muninn_query", "sessions"),
	}
	trace := ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull)
	want := []string{"Shifted from net to store", "Shifted from store to query"}
	if diff := cmp.Diff(want, trace.HypothesisChain); diff != "" {
		t.Errorf("hypothesis chain mismatch (-want +got):\n%s", diff)
	}
}

func TestBreakthroughWindow(t *testing.T) {
	calls := []store.ToolCallRow{
		call("read", "", "a.go"),
		call("edit", "", "a.go"),
		call("test", ""),
		call("muninn_decision_add", "record approach", "a.go"),
	}
	trace := ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull)
	if !strings.HasPrefix(trace.Breakthrough, "edit -> test -> muninn_decision_add") {
		t.Errorf("breakthrough = %q", trace.Breakthrough)
	}
	if !strings.Contains(trace.Breakthrough, "a.go") {
		t.Errorf("breakthrough missing files: %q", trace.Breakthrough)
	}

	// Failed sessions record no breakthrough.
	trace = ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFailed)
	if trace.Breakthrough != "" {
		t.Errorf("failed session should have no breakthrough: %q", trace.Breakthrough)
	}
}

func TestStrategyTagsAndDuration(t *testing.T) {
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	calls := []store.ToolCallRow{
		{ToolName: "muninn_query", InputSummary: "find handler", CreatedAt: start},
		{ToolName: "edit", FilesInvolved: []string{"h.go"}, CreatedAt: start.Add(20 * time.Second)},
		{ToolName: "muninn_decision_add", CreatedAt: start.Add(45 * time.Second)},
	}
	trace := ExtractTrace(store.SessionRow{ID: 1}, calls, SuccessFull)

	hasTag := func(name string) bool {
		for _, tag := range trace.StrategyTags {
			if tag == name {
				return true
			}
		}
		return false
	}
	if !hasTag("search-first") || !hasTag("record-decisions") {
		t.Errorf("tags = %v", trace.StrategyTags)
	}
	if trace.DurationMs != 45000 {
		t.Errorf("duration = %d, want 45000", trace.DurationMs)
	}
}
