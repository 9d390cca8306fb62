package store

import (
	"encoding/json"
	"fmt"
)

// Feedback and learning tables: context injections, retrieval feedback,
// reasoning traces, the strategy catalog, A/B tests and budget
// recommendations.

// InsertInjection records what the router surfaced for a session.
func (s *Store) InsertInjection(projectID, sessionID int64, contextType string, sourceID int64, relevance float64) error {
	_, err := s.a.Run(`
		INSERT INTO context_injections (project_id, session_id, context_type, source_id, relevance_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, sessionID, contextType, sourceID, relevance, nowUTC())
	return err
}

// Injections lists a session's injection rows.
func (s *Store) Injections(sessionID int64) ([]InjectionRow, error) {
	rows, err := s.a.All("SELECT * FROM context_injections WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]InjectionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, injectionFromRow(r))
	}
	return out, nil
}

// MarkInjectionUsed flips was_used for one injection row.
func (s *Store) MarkInjectionUsed(id int64) error {
	_, err := s.a.Run("UPDATE context_injections SET was_used = 1 WHERE id = ?", id)
	return err
}

// InjectionStats aggregates per-kind use over the last n sessions.
type InjectionStats struct {
	ContextType        string
	Total              int64
	Used               int64
	AvgRelevance       float64
	SuccessCorrelation float64 // share of rows in sessions that ended success
}

// InjectionStatsRecent computes per-kind stats over the project's last n
// ended sessions. Success means the canonical numeric success = 2.
func (s *Store) InjectionStatsRecent(projectID int64, n int) ([]InjectionStats, error) {
	rows, err := s.a.All(`
		SELECT ci.context_type,
		       COUNT(*) AS total,
		       COALESCE(SUM(ci.was_used), 0) AS used,
		       COALESCE(AVG(ci.relevance_score), 0) AS avg_rel,
		       COALESCE(AVG(CASE WHEN se.success = 2 THEN 1.0 ELSE 0.0 END), 0) AS success_corr
		FROM context_injections ci
		JOIN sessions se ON se.id = ci.session_id
		WHERE se.id IN (
			SELECT id FROM sessions
			WHERE project_id = ? AND ended_at IS NOT NULL
			ORDER BY ended_at DESC LIMIT ?
		)
		GROUP BY ci.context_type`, projectID, n)
	if err != nil {
		return nil, err
	}
	out := make([]InjectionStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, InjectionStats{
			ContextType:        r.Str("context_type"),
			Total:              r.Int("total"),
			Used:               r.Int("used"),
			AvgRelevance:       r.Float("avg_rel"),
			SuccessCorrelation: r.Float("success_corr"),
		})
	}
	return out, nil
}

// TouchedLearningIDs lists learnings this session surfaced.
func (s *Store) TouchedLearningIDs(sessionID int64) ([]int64, error) {
	rows, err := s.a.All(
		"SELECT DISTINCT source_id FROM context_injections WHERE session_id = ? AND context_type = 'learning'",
		sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Int("source_id"))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Retrieval feedback
// ---------------------------------------------------------------------------

// InsertRetrievalFeedback appends a suggestion-vs-usage observation.
func (s *Store) InsertRetrievalFeedback(projectID, sessionID int64, contextType, itemPath string, wasSuggested, wasUsed bool, relevance float64) error {
	_, err := s.a.Run(`
		INSERT INTO retrieval_feedback (project_id, session_id, context_type, item_path, was_suggested, was_used, relevance_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, sessionID, contextType, itemPath, wasSuggested, wasUsed, relevance, nowUTC())
	return err
}

// RetrievalAccuracy aggregates per-kind suggestion accuracy.
type RetrievalAccuracy struct {
	ContextType string
	Suggested   int64
	Used        int64
	Accuracy    float64
}

// RetrievalAccuracyByKind computes accuracy over all recorded feedback.
func (s *Store) RetrievalAccuracyByKind(projectID int64) ([]RetrievalAccuracy, error) {
	rows, err := s.a.All(`
		SELECT context_type,
		       COALESCE(SUM(was_suggested), 0) AS suggested,
		       COALESCE(SUM(CASE WHEN was_suggested = 1 AND was_used = 1 THEN 1 ELSE 0 END), 0) AS used
		FROM retrieval_feedback
		WHERE project_id = ?
		GROUP BY context_type`, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]RetrievalAccuracy, 0, len(rows))
	for _, r := range rows {
		acc := RetrievalAccuracy{
			ContextType: r.Str("context_type"),
			Suggested:   r.Int("suggested"),
			Used:        r.Int("used"),
		}
		if acc.Suggested > 0 {
			acc.Accuracy = float64(acc.Used) / float64(acc.Suggested)
		}
		out = append(out, acc)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Reasoning traces
// ---------------------------------------------------------------------------

// InsertTrace persists an extracted reasoning trace. One trace per session;
// re-running the pipeline on the same session is a no-op.
func (s *Store) InsertTrace(projectID int64, t TraceRow) (int64, error) {
	existing, err := s.a.Get("SELECT id FROM reasoning_traces WHERE session_id = ?", t.SessionID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.Int("id"), nil
	}
	sig, _ := json.Marshal(t.ProblemSignature)
	dead, _ := json.Marshal(t.DeadEnds)
	hyp, _ := json.Marshal(t.HypothesisChain)
	tags, _ := json.Marshal(t.StrategyTags)
	seq, _ := json.Marshal(t.ToolSequence)
	res, err := s.a.Run(`
		INSERT INTO reasoning_traces (project_id, session_id, problem_signature, dead_ends, hypothesis_chain, breakthrough, strategy_tags, tool_sequence, duration_ms, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, t.SessionID, string(sig), string(dead), string(hyp), t.Breakthrough, string(tags), string(seq), t.DurationMs, t.Success, nowUTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// RecentTraces returns the last n traces, newest first.
func (s *Store) RecentTraces(projectID int64, n int) ([]TraceRow, error) {
	rows, err := s.a.All(
		"SELECT * FROM reasoning_traces WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		projectID, n)
	if err != nil {
		return nil, err
	}
	out := make([]TraceRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, traceFromRow(r))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Strategy catalog
// ---------------------------------------------------------------------------

// GetStrategy returns a strategy by name.
func (s *Store) GetStrategy(projectID int64, name string) (StrategyRow, error) {
	row, err := s.a.Get(
		"SELECT * FROM strategy_catalog WHERE project_id = ? AND name = ?", projectID, name)
	if err != nil {
		return StrategyRow{}, err
	}
	if row == nil {
		return StrategyRow{}, fmt.Errorf("%w: strategy %s", ErrNotFound, name)
	}
	return strategyFromRow(row), nil
}

// UpsertStrategy writes a strategy entry keyed on (project, name).
func (s *Store) UpsertStrategy(projectID int64, st StrategyRow) error {
	ids, _ := json.Marshal(st.SourceTraceIDs)
	now := nowUTC()
	_, err := s.a.Run(`
		INSERT INTO strategy_catalog (project_id, name, description, success_rate, times_used, avg_duration_ms, source_trace_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET
			description = excluded.description,
			success_rate = excluded.success_rate,
			times_used = excluded.times_used,
			avg_duration_ms = excluded.avg_duration_ms,
			source_trace_ids = excluded.source_trace_ids,
			updated_at = excluded.updated_at`,
		projectID, st.Name, st.Description, st.SuccessRate, st.TimesUsed, st.AvgDurationMs, string(ids), now, now)
	return err
}

// TopStrategies ranks by success rate then usage.
func (s *Store) TopStrategies(projectID int64, n int) ([]StrategyRow, error) {
	rows, err := s.a.All(`
		SELECT * FROM strategy_catalog WHERE project_id = ?
		ORDER BY success_rate DESC, times_used DESC LIMIT ?`, projectID, n)
	if err != nil {
		return nil, err
	}
	out := make([]StrategyRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, strategyFromRow(r))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// A/B tests
// ---------------------------------------------------------------------------

// RunningABTest returns the project's single running test, or NotFound.
func (s *Store) RunningABTest(projectID int64) (ABTestRow, error) {
	row, err := s.a.Get(
		"SELECT * FROM ab_tests WHERE project_id = ? AND status = 'running' ORDER BY id ASC LIMIT 1",
		projectID)
	if err != nil {
		return ABTestRow{}, err
	}
	if row == nil {
		return ABTestRow{}, fmt.Errorf("%w: running A/B test", ErrNotFound)
	}
	return abTestFromRow(row), nil
}

// CreateABTest opens a test. Creation fails while another test is running.
func (s *Store) CreateABTest(projectID int64, name, controlConfig, variantConfig, metric string, minSessions int) (int64, error) {
	if _, err := s.RunningABTest(projectID); err == nil {
		return 0, fmt.Errorf("project %d already has a running A/B test", projectID)
	}
	res, err := s.a.Run(`
		INSERT INTO ab_tests (project_id, test_name, control_config, variant_config, metric, min_sessions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, name, controlConfig, variantConfig, metric, minSessions, nowUTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// RecordABSession adds a session's metric value to one arm.
func (s *Store) RecordABSession(testID int64, variant bool, metricValue float64) error {
	col := "control"
	if variant {
		col = "variant"
	}
	q := fmt.Sprintf(`
		UPDATE ab_tests SET %s_sessions = %s_sessions + 1, %s_metric_sum = %s_metric_sum + ?
		WHERE id = ? AND status = 'running'`, col, col, col, col)
	_, err := s.a.Run(q, metricValue, testID)
	return err
}

// ConcludeABTest stamps the conclusion and closes the test.
func (s *Store) ConcludeABTest(testID int64, conclusion string) error {
	_, err := s.a.Run(
		"UPDATE ab_tests SET status = 'concluded', conclusion = ?, concluded_at = ? WHERE id = ? AND status = 'running'",
		conclusion, nowUTC(), testID)
	return err
}

// ---------------------------------------------------------------------------
// Budget recommendations
// ---------------------------------------------------------------------------

// UpsertBudgetRecommendation writes the per-(project, context_type) override.
func (s *Store) UpsertBudgetRecommendation(projectID int64, contextType string, budget int, useRate float64) error {
	_, err := s.a.Run(`
		INSERT INTO budget_recommendations (project_id, context_type, recommended_budget, use_rate, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, context_type) DO UPDATE SET
			recommended_budget = excluded.recommended_budget,
			use_rate = excluded.use_rate,
			updated_at = excluded.updated_at`,
		projectID, contextType, budget, useRate, nowUTC())
	return err
}

// BudgetRecommendations returns the override map for a project.
func (s *Store) BudgetRecommendations(projectID int64) (map[string]BudgetRecRow, error) {
	rows, err := s.a.All("SELECT * FROM budget_recommendations WHERE project_id = ?", projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]BudgetRecRow, len(rows))
	for _, r := range rows {
		rec := budgetRecFromRow(r)
		out[rec.ContextType] = rec
	}
	return out, nil
}
