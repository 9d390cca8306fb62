// Package worker runs muninn's background jobs: the fragility scan, the
// outcome pipeline drain, strategy distillation and store maintenance. Jobs
// are cooperative: they check their context between passes and between files,
// and they never block a foreground request beyond a single query.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravnltd/muninn/internal/fragility"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/outcome"
	"github.com/ravnltd/muninn/internal/store"
)

// Intervals for the periodic jobs.
const (
	DefaultScanInterval     = 10 * time.Minute
	DefaultOutcomeInterval  = 1 * time.Minute
	DefaultDistillInterval  = 30 * time.Minute
	DefaultMaintainInterval = 6 * time.Hour
)

// Worker owns the background schedule for one project.
type Worker struct {
	store     *store.Store
	projectID int64
	scorer    *fragility.Scorer
	pipeline  *outcome.Pipeline
	distiller *outcome.Distiller

	ScanInterval     time.Duration
	OutcomeInterval  time.Duration
	DistillInterval  time.Duration
	MaintainInterval time.Duration
}

// New builds a worker with default intervals.
func New(s *store.Store, projectID int64) *Worker {
	return &Worker{
		store:            s,
		projectID:        projectID,
		scorer:           fragility.NewScorer(s),
		pipeline:         outcome.NewPipeline(s),
		distiller:        outcome.NewDistiller(s),
		ScanInterval:     DefaultScanInterval,
		OutcomeInterval:  DefaultOutcomeInterval,
		DistillInterval:  DefaultDistillInterval,
		MaintainInterval: DefaultMaintainInterval,
	}
}

// Run blocks until the context is cancelled, driving every periodic job.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryWorker)
	log.Info("background worker starting for project %d", w.projectID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.loop(ctx, w.ScanInterval, w.runScan) })
	g.Go(func() error { return w.loop(ctx, w.OutcomeInterval, w.drainOutcomes) })
	g.Go(func() error { return w.loop(ctx, w.DistillInterval, w.runDistill) })
	g.Go(func() error { return w.loop(ctx, w.MaintainInterval, w.runMaintenance) })

	err := g.Wait()
	log.Info("background worker stopped")
	if err == context.Canceled {
		return nil
	}
	return err
}

// loop runs fn on a ticker until cancellation. Job errors are suppressed and
// counted; the loop itself only ends with the context.
func (w *Worker) loop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil && err != context.Canceled {
				logging.Suppress("worker.job", err)
			}
		}
	}
}

// runScan executes one fragility pass.
func (w *Worker) runScan(ctx context.Context) error {
	_, err := w.scorer.ComputeProjectFragility(ctx, w.projectID, fragility.DefaultMaxFiles)
	return err
}

// drainOutcomes processes ended sessions the pipeline has not seen yet, e.g.
// sessions ended by a remote client without a local pipeline run.
func (w *Worker) drainOutcomes(ctx context.Context) error {
	sessions, err := w.store.EndedSessionsWithoutTrace(w.projectID, 10)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.pipeline.RunSessionEnd(ctx, w.projectID, session.ID, "", outcome.ExplicitUnset); err != nil {
			logging.Suppress("worker.outcome", err)
		}
	}
	return nil
}

// runDistill executes one strategy-distillation pass.
func (w *Worker) runDistill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.distiller.Distill(w.projectID)
}
