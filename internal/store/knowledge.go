package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Decision, issue, learning and error-fix operations. The FTS search methods
// expect an already-escaped MATCH expression (collect.EscapeFTS is the single
// authority for that translation).

// decisionOutcomes enumerates the legal terminal outcome states.
var decisionOutcomes = map[string]bool{
	"success": true, "failed": true, "revised": true, "reverted": true,
}

// InsertDecision records a decision with the files it affects.
func (s *Store) InsertDecision(projectID int64, title, decision, reasoning string, affects []string) (int64, error) {
	affectsJSON, _ := json.Marshal(affects)
	now := nowUTC()
	res, err := s.a.Run(`
		INSERT INTO decisions (project_id, title, decision, reasoning, affects, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, title, decision, reasoning, string(affectsJSON), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision: %w", err)
	}
	return res.LastInsertID, nil
}

// SetDecisionOutcome transitions pending -> terminal. A decision that already
// left pending stays where it is; the transition happens at most once.
func (s *Store) SetDecisionOutcome(id int64, outcome, notes string) error {
	if !decisionOutcomes[outcome] {
		return fmt.Errorf("invalid outcome status %q", outcome)
	}
	res, err := s.a.Run(`
		UPDATE decisions SET outcome_status = ?, outcome_at = ?, outcome_notes = ?, updated_at = ?
		WHERE id = ? AND outcome_status = 'pending'`,
		outcome, nowUTC(), notes, nowUTC(), id)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		row, err := s.a.Get("SELECT id FROM decisions WHERE id = ?", id)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: decision %d", ErrNotFound, id)
		}
		return fmt.Errorf("decision %d already has a terminal outcome", id)
	}
	return nil
}

// ArchiveDecision moves a decision out of the active set.
func (s *Store) ArchiveDecision(id int64) error {
	_, err := s.a.Run("UPDATE decisions SET status = 'archived', updated_at = ? WHERE id = ?", nowUTC(), id)
	return err
}

// activeDecisions loads recent active decisions for in-memory filtering.
// Decision sets stay small; filtering on the decoded affects list beats
// fighting JSON in SQL.
func (s *Store) activeDecisions(projectID int64) ([]DecisionRow, error) {
	rows, err := s.a.All(`
		SELECT * FROM decisions WHERE project_id = ? AND status = 'active'
		ORDER BY created_at DESC LIMIT 200`, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]DecisionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, decisionFromRow(r))
	}
	return out, nil
}

// DecisionsForFiles returns active decisions whose affects list overlaps the
// given paths. Empty paths means every active decision, recency first.
func (s *Store) DecisionsForFiles(projectID int64, paths []string, limit int) ([]DecisionRow, error) {
	return s.filterDecisions(projectID, paths, limit, func(d DecisionRow) bool { return true })
}

// FailedDecisions returns active decisions whose outcome is failed, scoped to
// the given paths when non-empty.
func (s *Store) FailedDecisions(projectID int64, paths []string, limit int) ([]DecisionRow, error) {
	return s.filterDecisions(projectID, paths, limit, func(d DecisionRow) bool {
		return d.OutcomeStatus == "failed"
	})
}

// Contradictions returns active decisions that were later revised or reverted:
// the prior direction no longer holds and the agent should know.
func (s *Store) Contradictions(projectID int64, paths []string, limit int) ([]DecisionRow, error) {
	return s.filterDecisions(projectID, paths, limit, func(d DecisionRow) bool {
		return d.OutcomeStatus == "revised" || d.OutcomeStatus == "reverted"
	})
}

func (s *Store) filterDecisions(projectID int64, paths []string, limit int, keep func(DecisionRow) bool) ([]DecisionRow, error) {
	decisions, err := s.activeDecisions(projectID)
	if err != nil {
		return nil, err
	}
	var out []DecisionRow
	for _, d := range decisions {
		if !keep(d) {
			continue
		}
		if len(paths) > 0 && !overlaps(d.Affects, paths) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y || filepath.Base(x) == filepath.Base(y) {
				return true
			}
		}
	}
	return false
}

// SearchDecisions runs an FTS query over decisions, best match first.
func (s *Store) SearchDecisions(projectID int64, match string, limit int) ([]DecisionRow, error) {
	if match == `""` || match == "" {
		return nil, nil
	}
	rows, err := s.a.All(`
		SELECT d.* FROM decisions_fts
		JOIN decisions d ON d.id = decisions_fts.rowid
		WHERE decisions_fts MATCH ? AND d.project_id = ?
		ORDER BY bm25(decisions_fts) LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]DecisionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, decisionFromRow(r))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Issues
// ---------------------------------------------------------------------------

// InsertIssue records an open issue.
func (s *Store) InsertIssue(projectID int64, title, description, issueType string, severity int, workaround string) (int64, error) {
	res, err := s.a.Run(`
		INSERT INTO issues (project_id, title, description, type, severity, workaround, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, title, description, issueType, severity, workaround, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert issue: %w", err)
	}
	return res.LastInsertID, nil
}

// ResolveIssue closes an open issue. Resolving an unknown or already-resolved
// issue is NotFound.
func (s *Store) ResolveIssue(projectID, id int64, resolution string) error {
	res, err := s.a.Run(`
		UPDATE issues SET status = 'resolved', resolution = ?, resolved_at = ?
		WHERE id = ? AND project_id = ? AND status = 'open'`,
		resolution, nowUTC(), id, projectID)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return fmt.Errorf("%w: open issue %d", ErrNotFound, id)
	}
	return nil
}

// OpenIssues lists open issues, most severe first.
func (s *Store) OpenIssues(projectID int64, limit int) ([]IssueRow, error) {
	rows, err := s.a.All(`
		SELECT * FROM issues WHERE project_id = ? AND status = 'open'
		ORDER BY severity DESC, created_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]IssueRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, issueFromRow(r))
	}
	return out, nil
}

// IssuesResolvedBetween counts resolutions inside a session window.
func (s *Store) IssuesResolvedBetween(projectID int64, from, to time.Time) (int64, error) {
	row, err := s.a.Get(`
		SELECT COUNT(*) AS n FROM issues
		WHERE project_id = ? AND status = 'resolved' AND resolved_at >= ? AND resolved_at <= ?`,
		projectID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil || row == nil {
		return 0, err
	}
	return row.Int("n"), nil
}

// SearchIssues runs an FTS query over issues.
func (s *Store) SearchIssues(projectID int64, match string, openOnly bool, limit int) ([]IssueRow, error) {
	if match == `""` || match == "" {
		return nil, nil
	}
	q := `
		SELECT i.* FROM issues_fts
		JOIN issues i ON i.id = issues_fts.rowid
		WHERE issues_fts MATCH ? AND i.project_id = ?`
	if openOnly {
		q += " AND i.status = 'open'"
	}
	q += " ORDER BY bm25(issues_fts) LIMIT ?"
	rows, err := s.a.All(q, match, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]IssueRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, issueFromRow(r))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Learnings
// ---------------------------------------------------------------------------

// InsertLearning records a learning. Confidence clamps into [0.5, 10].
func (s *Store) InsertLearning(projectID int64, title, content, category, context string, confidence float64, foundational bool, reviewAfter string) (int64, error) {
	if confidence < 0.5 {
		confidence = 0.5
	}
	if confidence > 10 {
		confidence = 10
	}
	now := nowUTC()
	var review any
	if reviewAfter != "" {
		review = reviewAfter
	}
	res, err := s.a.Run(`
		INSERT INTO learnings (project_id, title, content, category, context, confidence, foundational, review_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, title, content, category, context, confidence, foundational, review, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert learning: %w", err)
	}
	return res.LastInsertID, nil
}

// GetLearning returns a learning by id.
func (s *Store) GetLearning(id int64) (LearningRow, error) {
	row, err := s.a.Get("SELECT * FROM learnings WHERE id = ?", id)
	if err != nil {
		return LearningRow{}, err
	}
	if row == nil {
		return LearningRow{}, fmt.Errorf("%w: learning %d", ErrNotFound, id)
	}
	return learningFromRow(row), nil
}

// UpdateLearningConfidence writes a reinforced confidence, optionally bumping
// the application counter.
func (s *Store) UpdateLearningConfidence(id int64, confidence float64, bumpApplied bool) error {
	bump := 0
	if bumpApplied {
		bump = 1
	}
	_, err := s.a.Run(
		"UPDATE learnings SET confidence = ?, times_applied = times_applied + ?, updated_at = ? WHERE id = ?",
		confidence, bump, nowUTC(), id)
	return err
}

// LearningsForFiles returns learnings whose context mentions one of the paths
// (full path or basename), highest confidence first.
func (s *Store) LearningsForFiles(projectID int64, paths []string, limit int) ([]LearningRow, error) {
	seen := make(map[int64]bool)
	var out []LearningRow
	for _, p := range paths {
		needles := []string{p}
		if base := filepath.Base(p); base != p {
			needles = append(needles, base)
		}
		for _, needle := range needles {
			rows, err := s.a.All(`
				SELECT * FROM learnings WHERE project_id = ? AND context LIKE ?
				ORDER BY confidence DESC LIMIT ?`,
				projectID, "%"+needle+"%", limit)
			if err != nil {
				return nil, err
			}
			for _, r := range rows {
				l := learningFromRow(r)
				if !seen[l.ID] {
					seen[l.ID] = true
					out = append(out, l)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchLearnings runs an FTS query over learnings.
func (s *Store) SearchLearnings(projectID int64, match string, limit int) ([]LearningRow, error) {
	if match == `""` || match == "" {
		return nil, nil
	}
	rows, err := s.a.All(`
		SELECT l.* FROM learnings_fts
		JOIN learnings l ON l.id = learnings_fts.rowid
		WHERE learnings_fts MATCH ? AND l.project_id = ?
		ORDER BY bm25(learnings_fts) LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]LearningRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, learningFromRow(r))
	}
	return out, nil
}

// StaleLearningIDs lists learnings whose review date has passed. Foundational
// learnings are exempt.
func (s *Store) StaleLearningIDs(projectID int64) ([]int64, error) {
	rows, err := s.a.All(`
		SELECT id FROM learnings
		WHERE project_id = ? AND foundational = 0 AND review_after IS NOT NULL AND review_after < ?`,
		projectID, nowUTC())
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Int("id"))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Error-fix pairs
// ---------------------------------------------------------------------------

// UpsertErrorFix records an error -> fix pairing, bumping the usage counter
// when the same error text is seen again.
func (s *Store) UpsertErrorFix(projectID int64, errorText, fixText string) (int64, error) {
	now := nowUTC()
	row, err := s.a.Get(
		"SELECT id FROM error_fix_pairs WHERE project_id = ? AND error_text = ?",
		projectID, errorText)
	if err != nil {
		return 0, err
	}
	if row != nil {
		id := row.Int("id")
		_, err := s.a.Run(
			"UPDATE error_fix_pairs SET fix_text = ?, use_count = use_count + 1, updated_at = ? WHERE id = ?",
			fixText, now, id)
		return id, err
	}
	res, err := s.a.Run(`
		INSERT INTO error_fix_pairs (project_id, error_text, fix_text, use_count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		projectID, errorText, fixText, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// SearchErrorFixes runs an FTS query over error-fix pairs.
func (s *Store) SearchErrorFixes(projectID int64, match string, limit int) ([]ErrorFixRow, error) {
	if match == `""` || match == "" {
		return nil, nil
	}
	rows, err := s.a.All(`
		SELECT p.* FROM error_fix_fts
		JOIN error_fix_pairs p ON p.id = error_fix_fts.rowid
		WHERE error_fix_fts MATCH ? AND p.project_id = ?
		ORDER BY bm25(error_fix_fts), p.use_count DESC LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ErrorFixRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, errorFixFromRow(r))
	}
	return out, nil
}

// SearchFiles runs an FTS query over file paths and purposes.
func (s *Store) SearchFiles(projectID int64, match string, limit int) ([]FileRow, error) {
	if match == `""` || match == "" {
		return nil, nil
	}
	rows, err := s.a.All(`
		SELECT f.* FROM files_fts
		JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ? AND f.project_id = ? AND f.archived_at IS NULL
		ORDER BY bm25(files_fts) LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]FileRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, fileFromRow(r))
	}
	return out, nil
}
