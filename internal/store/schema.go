package store

// Schema DDL executed on fresh databases before migrations. Existing databases
// are brought forward by the versioned migrations in migrations.go; this file
// always describes the latest shape.

// CurrentSchemaVersion tracks the latest schema this binary understands.
// v1: base tables (projects, files, symbols, decisions, issues, learnings,
//     sessions, relationships, tool_calls, test_results)
// v2: observation tables (git_commits, revert_events, error_events,
//     error_fix_pairs, call_graph, test_source_map)
// v3: feedback tables (context_injections, retrieval_feedback)
// v4: learning tables (reasoning_traces, strategy_catalog, ab_tests,
//     budget_recommendations)
// v5: files.velocity_score, files.temperature, files.manual_fragility
const CurrentSchemaVersion = 5

const baseSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	previous_paths TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	path TEXT NOT NULL,
	purpose TEXT NOT NULL DEFAULT '',
	fragility INTEGER NOT NULL DEFAULT 1,
	manual_fragility INTEGER NOT NULL DEFAULT 0,
	fragility_signals TEXT,
	fragility_computed_at TEXT,
	change_count INTEGER NOT NULL DEFAULT 0,
	velocity_score REAL NOT NULL DEFAULT 0,
	temperature TEXT NOT NULL DEFAULT '',
	archived_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(project_id, path)
);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	file_id INTEGER NOT NULL REFERENCES files(id),
	name TEXT NOT NULL,
	is_exported INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	title TEXT NOT NULL,
	decision TEXT NOT NULL,
	reasoning TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	outcome_status TEXT NOT NULL DEFAULT 'pending',
	outcome_at TEXT,
	outcome_notes TEXT,
	affects TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT 'bug',
	severity INTEGER NOT NULL DEFAULT 5,
	status TEXT NOT NULL DEFAULT 'open',
	workaround TEXT,
	resolution TEXT,
	resolved_at TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS learnings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'pattern',
	context TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 1.0,
	times_applied INTEGER NOT NULL DEFAULT 0,
	review_after TEXT,
	foundational INTEGER NOT NULL DEFAULT 0,
	embedding BLOB,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	goal TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	ended_at TEXT,
	outcome TEXT NOT NULL DEFAULT '',
	success INTEGER,
	files_touched TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS relationships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	source_type TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	strength REAL NOT NULL DEFAULT 0,
	notes TEXT,
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	tool_name TEXT NOT NULL,
	input_summary TEXT NOT NULL DEFAULT '',
	files_involved TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	status TEXT NOT NULL DEFAULT '',
	passed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS git_commits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	sha TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revert_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	details TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS error_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER,
	file_path TEXT NOT NULL DEFAULT '',
	error_text TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS error_fix_pairs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	error_text TEXT NOT NULL,
	fix_text TEXT NOT NULL,
	use_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call_graph (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	caller_file TEXT NOT NULL,
	callee_file TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_source_map (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	test_file TEXT NOT NULL,
	source_file TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS context_injections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	context_type TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	was_used INTEGER NOT NULL DEFAULT 0,
	relevance_score REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS retrieval_feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	context_type TEXT NOT NULL,
	item_path TEXT NOT NULL,
	was_suggested INTEGER NOT NULL DEFAULT 0,
	was_used INTEGER NOT NULL DEFAULT 0,
	relevance_score REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reasoning_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	problem_signature TEXT NOT NULL DEFAULT '[]',
	dead_ends TEXT NOT NULL DEFAULT '[]',
	hypothesis_chain TEXT NOT NULL DEFAULT '[]',
	breakthrough TEXT NOT NULL DEFAULT '',
	strategy_tags TEXT NOT NULL DEFAULT '[]',
	tool_sequence TEXT NOT NULL DEFAULT '[]',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_catalog (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	success_rate REAL NOT NULL DEFAULT 0,
	times_used INTEGER NOT NULL DEFAULT 0,
	avg_duration_ms INTEGER NOT NULL DEFAULT 0,
	source_trace_ids TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(project_id, name)
);

CREATE TABLE IF NOT EXISTS ab_tests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	test_name TEXT NOT NULL,
	control_config TEXT NOT NULL DEFAULT '{}',
	variant_config TEXT NOT NULL DEFAULT '{}',
	metric TEXT NOT NULL DEFAULT 'outcome',
	min_sessions INTEGER NOT NULL DEFAULT 20,
	control_sessions INTEGER NOT NULL DEFAULT 0,
	variant_sessions INTEGER NOT NULL DEFAULT 0,
	control_metric_sum REAL NOT NULL DEFAULT 0,
	variant_metric_sum REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'running',
	conclusion TEXT,
	created_at TEXT NOT NULL,
	concluded_at TEXT
);

CREATE TABLE IF NOT EXISTS budget_recommendations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	context_type TEXT NOT NULL,
	recommended_budget INTEGER NOT NULL,
	use_rate REAL NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	UNIQUE(project_id, context_type)
);
`

const indexSchema = `
CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
CREATE INDEX IF NOT EXISTS idx_files_fragility ON files(project_id, fragility DESC, change_count DESC);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id, status);
CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id, status);
CREATE INDEX IF NOT EXISTS idx_learnings_project ON learnings(project_id, category);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, started_at);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id);
CREATE INDEX IF NOT EXISTS idx_test_results_session ON test_results(session_id);
CREATE INDEX IF NOT EXISTS idx_error_events_project ON error_events(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_call_graph_callee ON call_graph(project_id, callee_file);
CREATE INDEX IF NOT EXISTS idx_test_source_map_source ON test_source_map(project_id, source_file);
CREATE INDEX IF NOT EXISTS idx_injections_session ON context_injections(session_id);
CREATE INDEX IF NOT EXISTS idx_feedback_session ON retrieval_feedback(session_id);
CREATE INDEX IF NOT EXISTS idx_traces_project ON reasoning_traces(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_strategies_rank ON strategy_catalog(project_id, success_rate DESC, times_used DESC);
`

// ftsSpec describes one FTS5 index: its virtual table, the backing table, and
// the indexed columns. The rowid of each FTS row mirrors the backing row id so
// MATCH results join back cheaply.
type ftsSpec struct {
	Table   string
	Backing string
	Columns []string
}

// ftsSpecs is the single authority for which tables carry full-text indexes.
var ftsSpecs = []ftsSpec{
	{"decisions_fts", "decisions", []string{"title", "decision", "reasoning"}},
	{"learnings_fts", "learnings", []string{"title", "content", "context"}},
	{"issues_fts", "issues", []string{"title", "description"}},
	{"files_fts", "files", []string{"path", "purpose"}},
	{"error_fix_fts", "error_fix_pairs", []string{"error_text", "fix_text"}},
}

// requiredTables is checked by the integrity report.
var requiredTables = []string{
	"meta", "projects", "files", "symbols", "decisions", "issues", "learnings",
	"sessions", "relationships", "tool_calls", "test_results", "git_commits",
	"revert_events", "error_events", "error_fix_pairs", "call_graph",
	"test_source_map", "context_injections", "retrieval_feedback",
	"reasoning_traces", "strategy_catalog", "ab_tests", "budget_recommendations",
}

// requiredIndexes is checked by the integrity report.
var requiredIndexes = []string{
	"idx_files_project", "idx_files_fragility", "idx_sessions_project",
	"idx_tool_calls_session", "idx_injections_session", "idx_strategies_rank",
}
