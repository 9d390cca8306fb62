package store

import (
	"encoding/json"
	"time"
)

// Typed row records. Every query in the store decodes its Row result into one
// of these immediately; the dynamic Row type never escapes the package.

// ProjectRow mirrors the projects table.
type ProjectRow struct {
	ID            int64
	Path          string
	Name          string
	PreviousPaths []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func projectFromRow(r Row) ProjectRow {
	p := ProjectRow{
		ID:        r.Int("id"),
		Path:      r.Str("path"),
		Name:      r.Str("name"),
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}
	_ = json.Unmarshal([]byte(r.Str("previous_paths")), &p.PreviousPaths)
	return p
}

// FileRow mirrors the files table.
type FileRow struct {
	ID                  int64
	ProjectID           int64
	Path                string
	Purpose             string
	Fragility           int
	ManualFragility     int
	FragilitySignals    string // serialized fragility.Signals
	FragilityComputedAt time.Time
	ChangeCount         int64
	VelocityScore       float64
	Temperature         string
	Archived            bool
}

func fileFromRow(r Row) FileRow {
	return FileRow{
		ID:                  r.Int("id"),
		ProjectID:           r.Int("project_id"),
		Path:                r.Str("path"),
		Purpose:             r.Str("purpose"),
		Fragility:           int(r.Int("fragility")),
		ManualFragility:     int(r.Int("manual_fragility")),
		FragilitySignals:    r.Str("fragility_signals"),
		FragilityComputedAt: r.Time("fragility_computed_at"),
		ChangeCount:         r.Int("change_count"),
		VelocityScore:       r.Float("velocity_score"),
		Temperature:         r.Str("temperature"),
		Archived:            !r.Null("archived_at"),
	}
}

// DecisionRow mirrors the decisions table.
type DecisionRow struct {
	ID            int64
	Title         string
	Decision      string
	Reasoning     string
	Status        string
	OutcomeStatus string
	OutcomeAt     time.Time
	OutcomeNotes  string
	Affects       []string
	CreatedAt     time.Time
}

func decisionFromRow(r Row) DecisionRow {
	d := DecisionRow{
		ID:            r.Int("id"),
		Title:         r.Str("title"),
		Decision:      r.Str("decision"),
		Reasoning:     r.Str("reasoning"),
		Status:        r.Str("status"),
		OutcomeStatus: r.Str("outcome_status"),
		OutcomeAt:     r.Time("outcome_at"),
		OutcomeNotes:  r.Str("outcome_notes"),
		CreatedAt:     r.Time("created_at"),
	}
	_ = json.Unmarshal([]byte(r.Str("affects")), &d.Affects)
	return d
}

// IssueRow mirrors the issues table.
type IssueRow struct {
	ID          int64
	Title       string
	Description string
	Type        string
	Severity    int
	Status      string
	Workaround  string
	Resolution  string
	ResolvedAt  time.Time
	CreatedAt   time.Time
}

func issueFromRow(r Row) IssueRow {
	return IssueRow{
		ID:          r.Int("id"),
		Title:       r.Str("title"),
		Description: r.Str("description"),
		Type:        r.Str("type"),
		Severity:    int(r.Int("severity")),
		Status:      r.Str("status"),
		Workaround:  r.Str("workaround"),
		Resolution:  r.Str("resolution"),
		ResolvedAt:  r.Time("resolved_at"),
		CreatedAt:   r.Time("created_at"),
	}
}

// LearningRow mirrors the learnings table.
type LearningRow struct {
	ID           int64
	Title        string
	Content      string
	Category     string
	Context      string
	Confidence   float64
	TimesApplied int64
	ReviewAfter  time.Time
	Foundational bool
	CreatedAt    time.Time
}

func learningFromRow(r Row) LearningRow {
	return LearningRow{
		ID:           r.Int("id"),
		Title:        r.Str("title"),
		Content:      r.Str("content"),
		Category:     r.Str("category"),
		Context:      r.Str("context"),
		Confidence:   r.Float("confidence"),
		TimesApplied: r.Int("times_applied"),
		ReviewAfter:  r.Time("review_after"),
		Foundational: r.Bool("foundational"),
		CreatedAt:    r.Time("created_at"),
	}
}

// SessionRow mirrors the sessions table.
type SessionRow struct {
	ID           int64
	ProjectID    int64
	Goal         string
	StartedAt    time.Time
	EndedAt      time.Time
	Ended        bool
	Outcome      string
	Success      int // 0 failed, 1 partial, 2 success; valid when Ended
	FilesTouched []string
}

func sessionFromRow(r Row) SessionRow {
	return SessionRow{
		ID:           r.Int("id"),
		ProjectID:    r.Int("project_id"),
		Goal:         r.Str("goal"),
		StartedAt:    r.Time("started_at"),
		EndedAt:      r.Time("ended_at"),
		Ended:        !r.Null("ended_at"),
		Outcome:      r.Str("outcome"),
		Success:      int(r.Int("success")),
		FilesTouched: splitList(r.Str("files_touched")),
	}
}

// ToolCallRow mirrors the tool_calls table.
type ToolCallRow struct {
	ID            int64
	SessionID     int64
	ToolName      string
	InputSummary  string
	FilesInvolved []string
	Success       bool
	CreatedAt     time.Time
}

func toolCallFromRow(r Row) ToolCallRow {
	return ToolCallRow{
		ID:            r.Int("id"),
		SessionID:     r.Int("session_id"),
		ToolName:      r.Str("tool_name"),
		InputSummary:  r.Str("input_summary"),
		FilesInvolved: splitList(r.Str("files_involved")),
		Success:       r.Bool("success"),
		CreatedAt:     r.Time("created_at"),
	}
}

// TestResultRow mirrors the test_results table.
type TestResultRow struct {
	ID        int64
	SessionID int64
	Status    string
	Passed    int64
	Failed    int64
	CreatedAt time.Time
}

func testResultFromRow(r Row) TestResultRow {
	return TestResultRow{
		ID:        r.Int("id"),
		SessionID: r.Int("session_id"),
		Status:    r.Str("status"),
		Passed:    r.Int("passed"),
		Failed:    r.Int("failed"),
		CreatedAt: r.Time("created_at"),
	}
}

// ErrorFixRow mirrors the error_fix_pairs table.
type ErrorFixRow struct {
	ID        int64
	ErrorText string
	FixText   string
	UseCount  int64
	UpdatedAt time.Time
}

func errorFixFromRow(r Row) ErrorFixRow {
	return ErrorFixRow{
		ID:        r.Int("id"),
		ErrorText: r.Str("error_text"),
		FixText:   r.Str("fix_text"),
		UseCount:  r.Int("use_count"),
		UpdatedAt: r.Time("updated_at"),
	}
}

// ErrorEventRow mirrors the error_events table.
type ErrorEventRow struct {
	ID        int64
	SessionID int64
	FilePath  string
	ErrorText string
	CreatedAt time.Time
}

func errorEventFromRow(r Row) ErrorEventRow {
	return ErrorEventRow{
		ID:        r.Int("id"),
		SessionID: r.Int("session_id"),
		FilePath:  r.Str("file_path"),
		ErrorText: r.Str("error_text"),
		CreatedAt: r.Time("created_at"),
	}
}

// InjectionRow mirrors the context_injections table.
type InjectionRow struct {
	ID             int64
	SessionID      int64
	ContextType    string
	SourceID       int64
	WasUsed        bool
	RelevanceScore float64
}

func injectionFromRow(r Row) InjectionRow {
	return InjectionRow{
		ID:             r.Int("id"),
		SessionID:      r.Int("session_id"),
		ContextType:    r.Str("context_type"),
		SourceID:       r.Int("source_id"),
		WasUsed:        r.Bool("was_used"),
		RelevanceScore: r.Float("relevance_score"),
	}
}

// TraceRow mirrors the reasoning_traces table; the JSON list columns decode
// into their slices.
type TraceRow struct {
	ID               int64
	SessionID        int64
	ProblemSignature []string
	DeadEnds         []string
	HypothesisChain  []string
	Breakthrough     string
	StrategyTags     []string
	ToolSequence     []string
	DurationMs       int64
	Success          bool
	CreatedAt        time.Time
}

func traceFromRow(r Row) TraceRow {
	t := TraceRow{
		ID:           r.Int("id"),
		SessionID:    r.Int("session_id"),
		Breakthrough: r.Str("breakthrough"),
		DurationMs:   r.Int("duration_ms"),
		Success:      r.Bool("success"),
		CreatedAt:    r.Time("created_at"),
	}
	_ = json.Unmarshal([]byte(r.Str("problem_signature")), &t.ProblemSignature)
	_ = json.Unmarshal([]byte(r.Str("dead_ends")), &t.DeadEnds)
	_ = json.Unmarshal([]byte(r.Str("hypothesis_chain")), &t.HypothesisChain)
	_ = json.Unmarshal([]byte(r.Str("strategy_tags")), &t.StrategyTags)
	_ = json.Unmarshal([]byte(r.Str("tool_sequence")), &t.ToolSequence)
	return t
}

// StrategyRow mirrors the strategy_catalog table.
type StrategyRow struct {
	ID             int64
	Name           string
	Description    string
	SuccessRate    float64
	TimesUsed      int64
	AvgDurationMs  int64
	SourceTraceIDs []int64
}

func strategyFromRow(r Row) StrategyRow {
	s := StrategyRow{
		ID:            r.Int("id"),
		Name:          r.Str("name"),
		Description:   r.Str("description"),
		SuccessRate:   r.Float("success_rate"),
		TimesUsed:     r.Int("times_used"),
		AvgDurationMs: r.Int("avg_duration_ms"),
	}
	_ = json.Unmarshal([]byte(r.Str("source_trace_ids")), &s.SourceTraceIDs)
	return s
}

// ABTestRow mirrors the ab_tests table. The config columns stay serialized at
// rest; BudgetConfig decodes them.
type ABTestRow struct {
	ID               int64
	TestName         string
	ControlConfig    string
	VariantConfig    string
	Metric           string
	MinSessions      int64
	ControlSessions  int64
	VariantSessions  int64
	ControlMetricSum float64
	VariantMetricSum float64
	Status           string
	Conclusion       string
}

func abTestFromRow(r Row) ABTestRow {
	return ABTestRow{
		ID:               r.Int("id"),
		TestName:         r.Str("test_name"),
		ControlConfig:    r.Str("control_config"),
		VariantConfig:    r.Str("variant_config"),
		Metric:           r.Str("metric"),
		MinSessions:      r.Int("min_sessions"),
		ControlSessions:  r.Int("control_sessions"),
		VariantSessions:  r.Int("variant_sessions"),
		ControlMetricSum: r.Float("control_metric_sum"),
		VariantMetricSum: r.Float("variant_metric_sum"),
		Status:           r.Str("status"),
		Conclusion:       r.Str("conclusion"),
	}
}

// BudgetRecRow mirrors the budget_recommendations table.
type BudgetRecRow struct {
	ContextType       string
	RecommendedBudget int
	UseRate           float64
	UpdatedAt         time.Time
}

func budgetRecFromRow(r Row) BudgetRecRow {
	return BudgetRecRow{
		ContextType:       r.Str("context_type"),
		RecommendedBudget: int(r.Int("recommended_budget")),
		UseRate:           r.Float("use_rate"),
		UpdatedAt:         r.Time("updated_at"),
	}
}
