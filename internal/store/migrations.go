package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ravnltd/muninn/internal/logging"
)

// Migration adds a column that an older database is missing. Whole-table
// additions are handled by baseSchema (CREATE TABLE IF NOT EXISTS); column
// additions need ALTER TABLE and therefore live here.
type Migration struct {
	Version int
	Table   string
	Column  string
	Def     string
}

// pendingMigrations lists every column added after the table first shipped.
var pendingMigrations = []Migration{
	// v2: error-fix usage counter gained a timestamp for staleness checks.
	{2, "error_fix_pairs", "updated_at", "TEXT NOT NULL DEFAULT ''"},
	// v3: feedback rows carry a relevance score.
	{3, "context_injections", "relevance_score", "REAL NOT NULL DEFAULT 0"},
	{3, "retrieval_feedback", "relevance_score", "REAL NOT NULL DEFAULT 0"},
	// v4: strategies track their source traces.
	{4, "strategy_catalog", "source_trace_ids", "TEXT NOT NULL DEFAULT '[]'"},
	// v5: editorial file signals.
	{5, "files", "velocity_score", "REAL NOT NULL DEFAULT 0"},
	{5, "files", "temperature", "TEXT NOT NULL DEFAULT ''"},
	{5, "files", "manual_fragility", "INTEGER NOT NULL DEFAULT 0"},
	{5, "learnings", "embedding", "BLOB"},
}

// migrationLogEntry is one JSON line in the append-only migration log.
type migrationLogEntry struct {
	Timestamp   string `json:"timestamp"`
	Database    string `json:"database"`
	FromVersion int    `json:"from_version"`
	ToVersion   int    `json:"to_version"`
	Applied     int    `json:"applied"`
	Skipped     int    `json:"skipped"`
}

// runMigrations brings the schema forward to CurrentSchemaVersion. A database
// written by a newer binary is left alone with a warning (SchemaBehind is not
// fatal to reads).
func (a *LocalAdapter) runMigrations() error {
	log := logging.Get(logging.CategoryStore)

	from := a.schemaVersion()
	if from > CurrentSchemaVersion {
		log.Warn("database schema v%d is newer than this binary (v%d); proceeding without migrating", from, CurrentSchemaVersion)
		return nil
	}
	if from == CurrentSchemaVersion {
		return nil
	}

	applied, skipped := 0, 0
	for _, m := range pendingMigrations {
		if m.Version <= from {
			skipped++
			continue
		}
		if !a.tableExists(m.Table) {
			// The table will be created at the latest shape by baseSchema.
			skipped++
			continue
		}
		if a.columnExists(m.Table, m.Column) {
			skipped++
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := a.db.Exec(ddl); err != nil {
			return fmt.Errorf("migration v%d %s.%s failed: %w", m.Version, m.Table, m.Column, err)
		}
		log.Info("migration applied: v%d added %s.%s", m.Version, m.Table, m.Column)
		applied++
	}

	if err := a.setSchemaVersion(CurrentSchemaVersion); err != nil {
		return err
	}
	a.appendMigrationLog(from, CurrentSchemaVersion, applied, skipped)
	log.Info("schema migrated v%d -> v%d (applied=%d skipped=%d)", from, CurrentSchemaVersion, applied, skipped)
	return nil
}

// schemaVersion reads the stored version. 0 means a fresh or pre-versioned
// database.
func (a *LocalAdapter) schemaVersion() int {
	if !a.tableExists("meta") {
		return 0
	}
	var v int
	err := a.db.QueryRow("SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'schema_version'").Scan(&v)
	if err != nil {
		return 0
	}
	return v
}

func (a *LocalAdapter) setSchemaVersion(v int) error {
	_, err := a.db.Exec(
		"INSERT INTO meta(key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		fmt.Sprintf("%d", v))
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

func (a *LocalAdapter) columnExists(table, column string) bool {
	for _, c := range a.tableColumns(table) {
		if c == column {
			return true
		}
	}
	return false
}

// appendMigrationLog writes one JSON line to the migration log. Failures are
// logged and swallowed; the log is diagnostic, not authoritative.
func (a *LocalAdapter) appendMigrationLog(from, to, applied, skipped int) {
	if a.migrationLog == "" {
		return
	}
	entry := migrationLogEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Database:    a.path,
		FromVersion: from,
		ToVersion:   to,
		Applied:     applied,
		Skipped:     skipped,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	f, err := os.OpenFile(a.migrationLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to open migration log: %v", err)
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}
