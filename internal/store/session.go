package store

import (
	"fmt"
	"time"
)

// Session lifecycle and per-session observation tables. Sessions are
// append-only and terminal once ended.

// StartSession opens a session.
func (s *Store) StartSession(projectID int64, goal string) (int64, error) {
	res, err := s.a.Run(
		"INSERT INTO sessions (project_id, goal, started_at) VALUES (?, ?, ?)",
		projectID, goal, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	return res.LastInsertID, nil
}

// EndSession stamps the terminal state. Ending an already-ended session leaves
// the first result in place so the outcome pipeline stays idempotent.
func (s *Store) EndSession(sessionID int64, outcome string, success int, filesTouched []string) error {
	res, err := s.a.Run(`
		UPDATE sessions SET ended_at = ?, outcome = ?, success = ?, files_touched = ?
		WHERE id = ? AND ended_at IS NULL`,
		nowUTC(), outcome, success, joinList(filesTouched), sessionID)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		row, err := s.a.Get("SELECT id FROM sessions WHERE id = ?", sessionID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
		}
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(sessionID int64) (SessionRow, error) {
	row, err := s.a.Get("SELECT * FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return SessionRow{}, err
	}
	if row == nil {
		return SessionRow{}, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	return sessionFromRow(row), nil
}

// RecentSessions returns the last n sessions, newest first.
func (s *Store) RecentSessions(projectID int64, n int) ([]SessionRow, error) {
	rows, err := s.a.All(
		"SELECT * FROM sessions WHERE project_id = ? ORDER BY started_at DESC, id DESC LIMIT ?",
		projectID, n)
	if err != nil {
		return nil, err
	}
	out := make([]SessionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, sessionFromRow(r))
	}
	return out, nil
}

// EndedSessionsWithoutTrace lists ended sessions that the outcome pipeline has
// not produced a reasoning trace for yet. The background worker drains this.
func (s *Store) EndedSessionsWithoutTrace(projectID int64, limit int) ([]SessionRow, error) {
	rows, err := s.a.All(`
		SELECT se.* FROM sessions se
		LEFT JOIN reasoning_traces rt ON rt.session_id = se.id
		WHERE se.project_id = ? AND se.ended_at IS NOT NULL AND rt.id IS NULL
		ORDER BY se.ended_at ASC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, sessionFromRow(r))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Tool calls
// ---------------------------------------------------------------------------

// InsertToolCall records one tool invocation inside a session.
func (s *Store) InsertToolCall(projectID, sessionID int64, toolName, inputSummary string, files []string, success bool) (int64, error) {
	res, err := s.a.Run(`
		INSERT INTO tool_calls (project_id, session_id, tool_name, input_summary, files_involved, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, sessionID, toolName, inputSummary, joinList(files), success, nowUTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// ToolCalls returns a session's calls in invocation order.
func (s *Store) ToolCalls(sessionID int64) ([]ToolCallRow, error) {
	rows, err := s.a.All(
		"SELECT * FROM tool_calls WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]ToolCallRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, toolCallFromRow(r))
	}
	return out, nil
}

// FilesTouched collects the distinct files involved in a session's tool calls.
func (s *Store) FilesTouched(sessionID int64) ([]string, error) {
	calls, err := s.ToolCalls(sessionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range calls {
		for _, f := range c.FilesInvolved {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Test results, commits, reverts, error events
// ---------------------------------------------------------------------------

// InsertTestResult records a test run inside a session.
func (s *Store) InsertTestResult(projectID, sessionID int64, status string, passed, failed int) error {
	_, err := s.a.Run(`
		INSERT INTO test_results (project_id, session_id, status, passed, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, sessionID, status, passed, failed, nowUTC())
	return err
}

// TestTotals sums a session's test results.
func (s *Store) TestTotals(sessionID int64) (passed, failed int64, err error) {
	row, err := s.a.Get(
		"SELECT COALESCE(SUM(passed),0) AS p, COALESCE(SUM(failed),0) AS f FROM test_results WHERE session_id = ?",
		sessionID)
	if err != nil || row == nil {
		return 0, 0, err
	}
	return row.Int("p"), row.Int("f"), nil
}

// TestHistoryForFile summarizes recent test results for sessions that touched
// the file.
func (s *Store) TestHistoryForFile(projectID int64, path string, limit int) ([]TestResultRow, error) {
	rows, err := s.a.All(`
		SELECT tr.* FROM test_results tr
		JOIN sessions se ON se.id = tr.session_id
		WHERE se.project_id = ? AND se.files_touched LIKE ?
		ORDER BY tr.created_at DESC LIMIT ?`,
		projectID, "%"+path+"%", limit)
	if err != nil {
		return nil, err
	}
	out := make([]TestResultRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, testResultFromRow(r))
	}
	return out, nil
}

// InsertCommit records a git commit marker.
func (s *Store) InsertCommit(projectID, sessionID int64, sha, message string) error {
	_, err := s.a.Run(
		"INSERT INTO git_commits (project_id, session_id, sha, message, created_at) VALUES (?, ?, ?, ?, ?)",
		projectID, sessionID, sha, message, nowUTC())
	return err
}

// CommitCount counts a session's commits.
func (s *Store) CommitCount(sessionID int64) (int64, error) {
	return s.countBySession("git_commits", sessionID)
}

// InsertRevert records a revert marker.
func (s *Store) InsertRevert(projectID, sessionID int64, details string) error {
	_, err := s.a.Run(
		"INSERT INTO revert_events (project_id, session_id, details, created_at) VALUES (?, ?, ?, ?)",
		projectID, sessionID, details, nowUTC())
	return err
}

// RevertCount counts a session's reverts.
func (s *Store) RevertCount(sessionID int64) (int64, error) {
	return s.countBySession("revert_events", sessionID)
}

func (s *Store) countBySession(table string, sessionID int64) (int64, error) {
	row, err := s.a.Get("SELECT COUNT(*) AS n FROM "+table+" WHERE session_id = ?", sessionID)
	if err != nil || row == nil {
		return 0, err
	}
	return row.Int("n"), nil
}

// InsertErrorEvent records an error observation, optionally tied to a session
// and a file.
func (s *Store) InsertErrorEvent(projectID int64, sessionID int64, filePath, errorText string) error {
	var sid any
	if sessionID > 0 {
		sid = sessionID
	}
	_, err := s.a.Run(
		"INSERT INTO error_events (project_id, session_id, file_path, error_text, created_at) VALUES (?, ?, ?, ?, ?)",
		projectID, sid, filePath, errorText, nowUTC())
	return err
}

// ErrorCountForSession counts a session's error events.
func (s *Store) ErrorCountForSession(sessionID int64) (int64, error) {
	return s.countBySession("error_events", sessionID)
}

// ErrorCountForFile counts error events against a file inside a window.
func (s *Store) ErrorCountForFile(projectID int64, path string, since time.Time) (int64, error) {
	row, err := s.a.Get(`
		SELECT COUNT(*) AS n FROM error_events
		WHERE project_id = ? AND file_path = ? AND created_at >= ?`,
		projectID, path, since.UTC().Format(time.RFC3339))
	if err != nil || row == nil {
		return 0, err
	}
	return row.Int("n"), nil
}

// RecentErrors lists the latest error events for the project.
func (s *Store) RecentErrors(projectID int64, limit int) ([]ErrorEventRow, error) {
	rows, err := s.a.All(
		"SELECT * FROM error_events WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ErrorEventRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, errorEventFromRow(r))
	}
	return out, nil
}
