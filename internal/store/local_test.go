package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*Store, *LocalAdapter) {
	t.Helper()
	a := NewLocalAdapter(":memory:", "")
	if err := a.Init(); err != nil {
		t.Fatalf("failed to init local adapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return New(a), a
}

func TestSchemaIntegrityRoundTrip(t *testing.T) {
	_, a := openTestStore(t)

	report, err := a.CheckIntegrity()
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if !report.Ok {
		t.Fatalf("fresh database is not healthy: %v", report.Problems())
	}
	if report.IntegrityCheck != "ok" {
		t.Errorf("integrity_check = %q", report.IntegrityCheck)
	}
	if len(report.MissingTables) > 0 || len(report.MissingFTSTables) > 0 || len(report.MissingIndexes) > 0 {
		t.Errorf("missing schema objects: %v", report.Problems())
	}
	if report.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", report.SchemaVersion, CurrentSchemaVersion)
	}
}

func TestFTSMirrorsBackingTable(t *testing.T) {
	s, a := openTestStore(t)
	p, err := s.EnsureProject("/tmp/proj")
	if err != nil {
		t.Fatalf("EnsureProject failed: %v", err)
	}

	id, err := s.InsertDecision(p.ID, "use sqlite", "store everything in sqlite", "simple and local", nil)
	if err != nil {
		t.Fatalf("InsertDecision failed: %v", err)
	}

	rows, err := a.All("SELECT rowid FROM decisions_fts WHERE decisions_fts MATCH ?", `"sqlite"`)
	if err != nil {
		t.Fatalf("FTS query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Int("rowid") != id {
		t.Fatalf("FTS row not mirrored: %v", rows)
	}

	// Update flows through the mirror triggers too.
	if _, err := a.Run("UPDATE decisions SET title = ? WHERE id = ?", "use postgres", id); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	rows, err = a.All("SELECT rowid FROM decisions_fts WHERE decisions_fts MATCH ?", `"postgres"`)
	if err != nil {
		t.Fatalf("FTS query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("FTS mirror missed update: %v", rows)
	}
}

func TestFTSRepairRebuildsDroppedColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	a := NewLocalAdapter(path, "")
	if err := a.Init(); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	s := New(a)
	p, err := s.EnsureProject("/tmp/proj")
	if err != nil {
		t.Fatalf("EnsureProject failed: %v", err)
	}
	if _, err := s.InsertLearning(p.ID, "retry flaky tests", "retry once before failing", "pattern", "ci", 2.0, false, ""); err != nil {
		t.Fatalf("InsertLearning failed: %v", err)
	}

	// Simulate a bad migration: recreate the FTS table with a missing column.
	for _, stmt := range []string{
		"DROP TRIGGER IF EXISTS learnings_fts_ai",
		"DROP TRIGGER IF EXISTS learnings_fts_au",
		"DROP TRIGGER IF EXISTS learnings_fts_ad",
		"DROP TABLE learnings_fts",
		"CREATE VIRTUAL TABLE learnings_fts USING fts5(title, content)",
	} {
		if err := a.Exec(stmt); err != nil {
			t.Fatalf("corrupting FTS failed on %q: %v", stmt, err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	a = NewLocalAdapter(path, "")
	if err := a.Init(); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer a.Close()

	cols := a.tableColumns("learnings_fts")
	if !columnSetMatches(cols, []string{"title", "content", "context"}) {
		t.Fatalf("repair did not restore columns: %v", cols)
	}

	rows, err := a.All("SELECT rowid FROM learnings_fts WHERE learnings_fts MATCH ?", `"flaky"`)
	if err != nil {
		t.Fatalf("FTS query failed after repair: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("repair did not backfill rows, got %d", len(rows))
	}

	// Insert trigger must be live again.
	s = New(a)
	if _, err := s.InsertLearning(p.ID, "pin versions", "pin dependency versions", "convention", "deps", 2.0, false, ""); err != nil {
		t.Fatalf("InsertLearning after repair failed: %v", err)
	}
	rows, err = a.All("SELECT rowid FROM learnings_fts WHERE learnings_fts MATCH ?", `"pin"`)
	if err != nil {
		t.Fatalf("FTS query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatal("insert trigger not recreated after repair")
	}
}

func TestEnsureProjectRenameDetection(t *testing.T) {
	s, _ := openTestStore(t)

	p, err := s.EnsureProject("/home/dev/oldname")
	if err != nil {
		t.Fatalf("EnsureProject failed: %v", err)
	}
	if _, err := s.UpsertFile(p.ID, "main.go", "entry point", 0); err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}

	// Same database, unknown path, existing files: treated as a rename.
	renamed, err := s.EnsureProject("/home/dev/newname")
	if err != nil {
		t.Fatalf("EnsureProject after rename failed: %v", err)
	}
	if renamed.ID != p.ID {
		t.Fatalf("rename created a new project: %d != %d", renamed.ID, p.ID)
	}
	if renamed.Path != "/home/dev/newname" {
		t.Errorf("path not updated: %s", renamed.Path)
	}
	if len(renamed.PreviousPaths) != 1 || renamed.PreviousPaths[0] != "/home/dev/oldname" {
		t.Errorf("previous path not preserved: %v", renamed.PreviousPaths)
	}
}

func TestDecisionOutcomeStateMachine(t *testing.T) {
	s, _ := openTestStore(t)
	p, _ := s.EnsureProject("/tmp/proj")

	id, err := s.InsertDecision(p.ID, "cache responses", "add caching layer", "latency", []string{"cache.go"})
	if err != nil {
		t.Fatalf("InsertDecision failed: %v", err)
	}

	if err := s.SetDecisionOutcome(id, "failed", "cache invalidation bugs"); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}
	// Terminal: a second transition is rejected.
	if err := s.SetDecisionOutcome(id, "success", ""); err == nil {
		t.Fatal("expected error on second outcome transition")
	}
	// Unknown decision is NotFound.
	if err := s.SetDecisionOutcome(99999, "failed", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetDecisionOutcome(id, "bogus", ""); err == nil {
		t.Fatal("expected error for invalid outcome status")
	}
}

func TestResolveIssueNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	p, _ := s.EnsureProject("/tmp/proj")

	id, err := s.InsertIssue(p.ID, "flaky websocket", "drops under load", "bug", 7, "reconnect loop")
	if err != nil {
		t.Fatalf("InsertIssue failed: %v", err)
	}
	if err := s.ResolveIssue(p.ID, id, "bumped library"); err != nil {
		t.Fatalf("ResolveIssue failed: %v", err)
	}
	if err := s.ResolveIssue(p.ID, id, "again"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double resolve, got %v", err)
	}
}

func TestMigrationBringsOldDatabaseForward(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	a := NewLocalAdapter(path, filepath.Join(dir, "migrations.log"))
	if err := a.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	// Rewind: drop a v5 column by recreating files the old way is overkill;
	// setting the version back exercises the version walk and the log.
	if err := a.setSchemaVersion(1); err != nil {
		t.Fatalf("setSchemaVersion failed: %v", err)
	}
	a.Close()

	a = NewLocalAdapter(path, filepath.Join(dir, "migrations.log"))
	if err := a.Init(); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer a.Close()
	if v := a.schemaVersion(); v != CurrentSchemaVersion {
		t.Fatalf("schema version = %d, want %d", v, CurrentSchemaVersion)
	}
}

func TestBudgetRecommendationUpsertKey(t *testing.T) {
	s, _ := openTestStore(t)
	p, _ := s.EnsureProject("/tmp/proj")

	if err := s.UpsertBudgetRecommendation(p.ID, "decisions", 390, 0.7); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := s.UpsertBudgetRecommendation(p.ID, "decisions", 273, 0.2); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	recs, err := s.BudgetRecommendations(p.ID)
	if err != nil {
		t.Fatalf("BudgetRecommendations failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected single row per (project, context_type), got %d", len(recs))
	}
	if recs["decisions"].RecommendedBudget != 273 {
		t.Errorf("budget = %d, want 273", recs["decisions"].RecommendedBudget)
	}
}
