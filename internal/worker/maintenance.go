package worker

import (
	"context"
	"time"

	"github.com/ravnltd/muninn/internal/logging"
)

// Store maintenance: archive files that have gone quiet and prune old
// injection rows. Files are never deleted, only stamped archived.

const (
	archiveAfterDays   = 180
	pruneInjectionDays = 90
)

// runMaintenance executes one maintenance pass.
func (w *Worker) runMaintenance(ctx context.Context) error {
	log := logging.Get(logging.CategoryWorker)
	if err := ctx.Err(); err != nil {
		return err
	}

	cutoff := time.Now().Add(-archiveAfterDays * 24 * time.Hour).UTC().Format(time.RFC3339)
	res, err := w.store.Adapter().Run(`
		UPDATE files SET archived_at = ?
		WHERE project_id = ? AND archived_at IS NULL AND updated_at < ? AND change_count = 0`,
		time.Now().UTC().Format(time.RFC3339), w.projectID, cutoff)
	if err != nil {
		return err
	}
	if res.Changes > 0 {
		log.Info("archived %d quiet files", res.Changes)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	pruneCutoff := time.Now().Add(-pruneInjectionDays * 24 * time.Hour).UTC().Format(time.RFC3339)
	res, err = w.store.Adapter().Run(
		"DELETE FROM context_injections WHERE project_id = ? AND created_at < ?",
		w.projectID, pruneCutoff)
	if err != nil {
		return err
	}
	if res.Changes > 0 {
		log.Info("pruned %d old injection rows", res.Changes)
	}
	return nil
}
