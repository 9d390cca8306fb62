package store

import (
	"fmt"
	"strings"
)

// File, symbol, call-graph and test-map operations.

// UpsertFile registers a file observation. fragility > 0 records a manual
// override that the scorer folds in as the override signal. Files are never
// deleted, only archived.
func (s *Store) UpsertFile(projectID int64, path, purpose string, fragility int) (FileRow, error) {
	now := nowUTC()
	row, err := s.a.Get("SELECT * FROM files WHERE project_id = ? AND path = ?", projectID, path)
	if err != nil {
		return FileRow{}, err
	}
	if row == nil {
		res, err := s.a.Run(`
			INSERT INTO files (project_id, path, purpose, fragility, manual_fragility, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			projectID, path, purpose, maxInt(fragility, 1), fragility, now, now)
		if err != nil {
			return FileRow{}, fmt.Errorf("failed to insert file: %w", err)
		}
		return FileRow{ID: res.LastInsertID, ProjectID: projectID, Path: path, Purpose: purpose, Fragility: maxInt(fragility, 1), ManualFragility: fragility}, nil
	}

	f := fileFromRow(row)
	if purpose != "" {
		f.Purpose = purpose
	}
	if fragility > 0 {
		f.ManualFragility = fragility
		f.Fragility = fragility
	}
	_, err = s.a.Run(
		"UPDATE files SET purpose = ?, fragility = ?, manual_fragility = ?, updated_at = ? WHERE id = ?",
		f.Purpose, f.Fragility, f.ManualFragility, now, f.ID)
	if err != nil {
		return FileRow{}, fmt.Errorf("failed to update file: %w", err)
	}
	return f, nil
}

// GetFile returns a file by path.
func (s *Store) GetFile(projectID int64, path string) (FileRow, error) {
	row, err := s.a.Get("SELECT * FROM files WHERE project_id = ? AND path = ?", projectID, path)
	if err != nil {
		return FileRow{}, err
	}
	if row == nil {
		return FileRow{}, fmt.Errorf("%w: file %s", ErrNotFound, path)
	}
	return fileFromRow(row), nil
}

// FileByID returns a file by its row id.
func (s *Store) FileByID(id int64) (FileRow, error) {
	row, err := s.a.Get("SELECT * FROM files WHERE id = ?", id)
	if err != nil {
		return FileRow{}, err
	}
	if row == nil {
		return FileRow{}, fmt.Errorf("%w: file %d", ErrNotFound, id)
	}
	return fileFromRow(row), nil
}

// FilesByPaths returns the known rows among the given paths, input order.
func (s *Store) FilesByPaths(projectID int64, paths []string) ([]FileRow, error) {
	out := make([]FileRow, 0, len(paths))
	for _, p := range paths {
		f, err := s.GetFile(projectID, p)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// FilesForScoring returns up to max non-archived files ordered the way the
// fragility scan consumes them.
func (s *Store) FilesForScoring(projectID int64, max int) ([]FileRow, error) {
	rows, err := s.a.All(`
		SELECT * FROM files
		WHERE project_id = ? AND archived_at IS NULL
		ORDER BY fragility DESC, change_count DESC
		LIMIT ?`, projectID, max)
	if err != nil {
		return nil, err
	}
	out := make([]FileRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, fileFromRow(r))
	}
	return out, nil
}

// SaveFragility persists a computed score with its signal breakdown.
func (s *Store) SaveFragility(fileID int64, score int, signalsJSON string) error {
	_, err := s.a.Run(
		"UPDATE files SET fragility = ?, fragility_signals = ?, fragility_computed_at = ?, updated_at = ? WHERE id = ?",
		score, signalsJSON, nowUTC(), nowUTC(), fileID)
	return err
}

// RecordFileChange bumps change_count for a path, creating the file row on
// first observation. velocity is the caller's changes-per-week estimate; a
// negative value leaves the stored score alone.
func (s *Store) RecordFileChange(projectID int64, path string, velocity float64) error {
	now := nowUTC()
	res, err := s.a.Run(`
		UPDATE files SET change_count = change_count + 1,
			velocity_score = CASE WHEN ? >= 0 THEN ? ELSE velocity_score END,
			updated_at = ?
		WHERE project_id = ? AND path = ?`,
		velocity, velocity, now, projectID, path)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		_, err = s.a.Run(`
			INSERT INTO files (project_id, path, change_count, velocity_score, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?, ?)`,
			projectID, path, maxFloat(velocity, 0), now, now)
	}
	return err
}

// ArchiveFile stamps archived_at. Archived files drop out of scoring and
// collection but remain on disk.
func (s *Store) ArchiveFile(fileID int64) error {
	_, err := s.a.Run("UPDATE files SET archived_at = ?, updated_at = ? WHERE id = ?", nowUTC(), nowUTC(), fileID)
	return err
}

// SetTemperature records an editorial temperature signal ("hot", "cooling").
func (s *Store) SetTemperature(fileID int64, temperature string) error {
	_, err := s.a.Run("UPDATE files SET temperature = ?, updated_at = ? WHERE id = ?", temperature, nowUTC(), fileID)
	return err
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// ReplaceSymbols swaps the symbol set for a file. Counts only; muninn does not
// parse source.
func (s *Store) ReplaceSymbols(projectID, fileID int64, names []string, exported []bool) error {
	if _, err := s.a.Run("DELETE FROM symbols WHERE file_id = ?", fileID); err != nil {
		return err
	}
	for i, name := range names {
		exp := 0
		if i < len(exported) && exported[i] {
			exp = 1
		}
		if _, err := s.a.Run(
			"INSERT INTO symbols (project_id, file_id, name, is_exported) VALUES (?, ?, ?, ?)",
			projectID, fileID, name, exp); err != nil {
			return err
		}
	}
	return nil
}

// SymbolCounts returns (total, exported) for a file.
func (s *Store) SymbolCounts(fileID int64) (int64, int64, error) {
	row, err := s.a.Get(
		"SELECT COUNT(*) AS total, COALESCE(SUM(is_exported), 0) AS exported FROM symbols WHERE file_id = ?", fileID)
	if err != nil || row == nil {
		return 0, 0, err
	}
	return row.Int("total"), row.Int("exported"), nil
}

// ---------------------------------------------------------------------------
// Call graph and test map
// ---------------------------------------------------------------------------

// AddCallEdge records caller -> callee.
func (s *Store) AddCallEdge(projectID int64, caller, callee string) error {
	_, err := s.a.Run(
		"INSERT INTO call_graph (project_id, caller_file, callee_file) VALUES (?, ?, ?)",
		projectID, caller, callee)
	return err
}

// DistinctCallers counts distinct callers of a file.
func (s *Store) DistinctCallers(projectID int64, path string) (int64, error) {
	row, err := s.a.Get(
		"SELECT COUNT(DISTINCT caller_file) AS n FROM call_graph WHERE project_id = ? AND callee_file = ?",
		projectID, path)
	if err != nil || row == nil {
		return 0, err
	}
	return row.Int("n"), nil
}

// AddTestMapping records test_file covering source_file.
func (s *Store) AddTestMapping(projectID int64, testFile, sourceFile string) error {
	_, err := s.a.Run(
		"INSERT INTO test_source_map (project_id, test_file, source_file) VALUES (?, ?, ?)",
		projectID, testFile, sourceFile)
	return err
}

// HasTests reports whether any test file maps to the source file.
func (s *Store) HasTests(projectID int64, path string) (bool, error) {
	row, err := s.a.Get(
		"SELECT COUNT(*) AS n FROM test_source_map WHERE project_id = ? AND source_file = ?",
		projectID, path)
	if err != nil || row == nil {
		return false, err
	}
	return row.Int("n") > 0, nil
}

// TestsFor lists test files covering a source file.
func (s *Store) TestsFor(projectID int64, path string) ([]string, error) {
	rows, err := s.a.All(
		"SELECT test_file FROM test_source_map WHERE project_id = ? AND source_file = ?",
		projectID, path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Str("test_file"))
	}
	return out, nil
}

// Cochangers returns files that historically change together with the target,
// derived from tool-call co-occurrence, most frequent first.
func (s *Store) Cochangers(projectID int64, path string, limit int) ([]string, error) {
	rows, err := s.a.All(`
		SELECT tc.files_involved FROM tool_calls tc
		JOIN sessions se ON se.id = tc.session_id
		WHERE se.project_id = ? AND tc.files_involved LIKE ?
		ORDER BY tc.id DESC LIMIT 500`,
		projectID, "%"+path+"%")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range rows {
		files := splitList(r.Str("files_involved"))
		hit := false
		for _, f := range files {
			if f == path {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		for _, f := range files {
			if f != path {
				counts[f]++
			}
		}
	}
	return topKeys(counts, limit), nil
}

// topKeys orders map keys by count descending, key ascending on ties.
func topKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// Insertion sort: cochanger sets are tiny.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if counts[b] > counts[a] || (counts[b] == counts[a] && strings.Compare(b, a) < 0) {
				keys[j-1], keys[j] = b, a
			} else {
				break
			}
		}
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
