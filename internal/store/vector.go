package store

import (
	"encoding/binary"
	"math"

	"github.com/ravnltd/muninn/internal/logging"
)

// Vector search support. When the sqlite-vec extension is present (see
// init_vec.go) the adapter maintains a vec0 virtual table over learning
// embeddings. Nothing outside this file calls the vector methods; the
// collectors search with FTS only.

// detectVecExtension probes for sqlite-vec and creates the index table when
// available. Absence is not an error.
func (a *LocalAdapter) detectVecExtension() {
	log := logging.Get(logging.CategoryStore)
	var version string
	if err := a.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		log.Debug("sqlite-vec not available: %v", err)
		a.vectorExt = false
		return
	}
	ddl := `CREATE VIRTUAL TABLE IF NOT EXISTS vec_index USING vec0(
		learning_id INTEGER PRIMARY KEY,
		embedding float[384]
	)`
	if _, err := a.db.Exec(ddl); err != nil {
		log.Warn("sqlite-vec detected (%s) but vec_index creation failed: %v", version, err)
		a.vectorExt = false
		return
	}
	a.vectorExt = true
	log.Info("sqlite-vec %s detected; vector index enabled", version)
}

// SerializeVector renders a float32 vector in sqlite-vec's little-endian blob
// format.
func SerializeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// StoreLearningEmbedding saves an embedding for a learning and mirrors it into
// the vector index when available.
func (s *Store) StoreLearningEmbedding(learningID int64, embedding []float32) error {
	blob := SerializeVector(embedding)
	if _, err := s.a.Run("UPDATE learnings SET embedding = ? WHERE id = ?", blob, learningID); err != nil {
		return err
	}
	local, ok := s.a.(*LocalAdapter)
	if !ok || !local.vectorExt {
		return nil
	}
	_, err := s.a.Run(
		"INSERT OR REPLACE INTO vec_index (learning_id, embedding) VALUES (?, ?)",
		learningID, blob)
	return err
}

// VectorSearchLearnings returns the closest learnings to the query embedding.
// Empty when the extension is missing or the adapter is remote.
func (s *Store) VectorSearchLearnings(projectID int64, query []float32, limit int) ([]LearningRow, error) {
	local, ok := s.a.(*LocalAdapter)
	if !ok || !local.vectorExt {
		return nil, nil
	}
	rows, err := s.a.All(`
		SELECT l.* FROM vec_index v
		JOIN learnings l ON l.id = v.learning_id
		WHERE v.embedding MATCH ? AND k = ? AND l.project_id = ?
		ORDER BY v.distance`,
		SerializeVector(query), limit, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]LearningRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, learningFromRow(r))
	}
	return out, nil
}
