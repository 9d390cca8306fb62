package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ravnltd/muninn/internal/logging"
)

// Store wraps an Adapter with the typed operations the rest of muninn uses.
// It is safe for concurrent use; serialization happens inside the adapter.
type Store struct {
	a Adapter
}

// New wraps an already-initialized adapter.
func New(a Adapter) *Store {
	return &Store{a: a}
}

// Adapter exposes the underlying capability set for passthrough callers.
func (s *Store) Adapter() Adapter { return s.a }

// Close releases the backend.
func (s *Store) Close() error { return s.a.Close() }

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// EnsureProject upserts a project by path and returns its row. In local mode a
// path that is unknown but whose database already tracks files is treated as a
// rename: the project with the most files adopts the new path and keeps the
// old one in previous_paths. Ties break on most recent updated_at, then lowest
// id, so the choice is deterministic.
func (s *Store) EnsureProject(path string) (ProjectRow, error) {
	log := logging.Get(logging.CategoryStore)

	row, err := s.a.Get("SELECT * FROM projects WHERE path = ?", path)
	if err != nil {
		return ProjectRow{}, err
	}
	if row != nil {
		return projectFromRow(row), nil
	}

	// Rename detection only applies when this adapter is local: a shared
	// primary serves many hosts whose paths legitimately differ.
	if _, isLocal := s.a.(*LocalAdapter); isLocal {
		candidate, err := s.a.Get(`
			SELECT p.*, COUNT(f.id) AS file_count
			FROM projects p
			LEFT JOIN files f ON f.project_id = p.id
			GROUP BY p.id
			HAVING file_count > 0
			ORDER BY file_count DESC, p.updated_at DESC, p.id ASC
			LIMIT 1`)
		if err == nil && candidate != nil {
			old := projectFromRow(candidate)
			prev := append(old.PreviousPaths, old.Path)
			prevJSON, _ := json.Marshal(prev)
			_, err := s.a.Run(
				"UPDATE projects SET path = ?, previous_paths = ?, updated_at = ? WHERE id = ?",
				path, string(prevJSON), nowUTC(), old.ID)
			if err != nil {
				return ProjectRow{}, err
			}
			log.Info("project renamed: %s -> %s (id=%d)", old.Path, path, old.ID)
			old.PreviousPaths = prev
			old.Path = path
			return old, nil
		}
	}

	name := filepath.Base(path)
	now := nowUTC()
	res, err := s.a.Run(
		"INSERT INTO projects (path, name, previous_paths, created_at, updated_at) VALUES (?, ?, '[]', ?, ?)",
		path, name, now, now)
	if err != nil {
		return ProjectRow{}, fmt.Errorf("failed to create project: %w", err)
	}
	log.Info("project registered: %s (id=%d)", path, res.LastInsertID)
	return ProjectRow{ID: res.LastInsertID, Path: path, Name: name}, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(id int64) (ProjectRow, error) {
	row, err := s.a.Get("SELECT * FROM projects WHERE id = ?", id)
	if err != nil {
		return ProjectRow{}, err
	}
	if row == nil {
		return ProjectRow{}, fmt.Errorf("%w: project %d", ErrNotFound, id)
	}
	return projectFromRow(row), nil
}
