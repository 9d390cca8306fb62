package store

import (
	"fmt"
	"strings"
)

// IntegrityReport is the structured result of a store health check. It
// distinguishes the individual failure classes so operators can tell a wrong
// journal mode from a missing FTS table.
type IntegrityReport struct {
	Ok bool `json:"ok"`

	IntegrityCheck   string   `json:"integrity_check"`
	MissingTables    []string `json:"missing_tables,omitempty"`
	MissingFTSTables []string `json:"missing_fts_tables,omitempty"`
	MissingIndexes   []string `json:"missing_indexes,omitempty"`
	JournalMode      string   `json:"journal_mode"`
	ForeignKeysOn    bool     `json:"foreign_keys_on"`
	SchemaVersion    int      `json:"schema_version"`
	BinaryVersion    int      `json:"binary_version"`
	StaleVersion     bool     `json:"stale_version"`
}

// Problems renders the failure classes as human-readable lines.
func (r *IntegrityReport) Problems() []string {
	var out []string
	if r.IntegrityCheck != "ok" {
		out = append(out, fmt.Sprintf("integrity_check: %s", r.IntegrityCheck))
	}
	if len(r.MissingTables) > 0 {
		out = append(out, "missing tables: "+strings.Join(r.MissingTables, ", "))
	}
	if len(r.MissingFTSTables) > 0 {
		out = append(out, "missing FTS tables: "+strings.Join(r.MissingFTSTables, ", "))
	}
	if len(r.MissingIndexes) > 0 {
		out = append(out, "missing indexes: "+strings.Join(r.MissingIndexes, ", "))
	}
	if !strings.EqualFold(r.JournalMode, "wal") && !strings.EqualFold(r.JournalMode, "memory") {
		out = append(out, "journal mode is "+r.JournalMode+", want wal")
	}
	if !r.ForeignKeysOn {
		out = append(out, "foreign keys are off")
	}
	if r.StaleVersion {
		out = append(out, fmt.Sprintf("schema v%d is newer than binary v%d", r.SchemaVersion, r.BinaryVersion))
	}
	return out
}

// CheckIntegrity runs the full health check against an open local adapter.
// In-memory databases report journal mode "memory", which is accepted.
func (a *LocalAdapter) CheckIntegrity() (*IntegrityReport, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	report := &IntegrityReport{BinaryVersion: CurrentSchemaVersion}

	if err := a.db.QueryRow("PRAGMA integrity_check").Scan(&report.IntegrityCheck); err != nil {
		return nil, fmt.Errorf("integrity_check failed: %w", err)
	}
	if err := a.db.QueryRow("PRAGMA journal_mode").Scan(&report.JournalMode); err != nil {
		return nil, fmt.Errorf("journal_mode query failed: %w", err)
	}
	var fk int
	if err := a.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		return nil, fmt.Errorf("foreign_keys query failed: %w", err)
	}
	report.ForeignKeysOn = fk == 1

	for _, t := range requiredTables {
		if !a.tableExists(t) {
			report.MissingTables = append(report.MissingTables, t)
		}
	}
	for _, spec := range ftsSpecs {
		if !a.tableExists(spec.Table) {
			report.MissingFTSTables = append(report.MissingFTSTables, spec.Table)
		}
	}
	for _, idx := range requiredIndexes {
		var n int
		err := a.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", idx).Scan(&n)
		if err != nil || n == 0 {
			report.MissingIndexes = append(report.MissingIndexes, idx)
		}
	}

	report.SchemaVersion = a.schemaVersion()
	report.StaleVersion = report.SchemaVersion > CurrentSchemaVersion

	report.Ok = report.IntegrityCheck == "ok" &&
		len(report.MissingTables) == 0 &&
		len(report.MissingFTSTables) == 0 &&
		len(report.MissingIndexes) == 0 &&
		(strings.EqualFold(report.JournalMode, "wal") || strings.EqualFold(report.JournalMode, "memory")) &&
		report.ForeignKeysOn
	return report, nil
}
