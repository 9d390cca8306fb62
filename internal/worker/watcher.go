package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Watcher observes file edits under the project root and feeds the change
// counters and velocity samples the fragility scorer reads.

// velocityWindow is the horizon for the changes-per-week estimate.
const velocityWindow = 30 * 24 * time.Hour

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".muninn": true,
	"dist": true, "build": true,
}

// Watcher tracks write events per file.
type Watcher struct {
	store     *store.Store
	projectID int64
	root      string

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewWatcher builds a watcher for the project root.
func NewWatcher(s *store.Store, projectID int64, root string) *Watcher {
	return &Watcher{
		store:     s,
		projectID: projectID,
		root:      root,
		history:   make(map[string][]time.Time),
	}
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryWorker)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}
	log.Info("watching %s for edits", w.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Suppress("watcher.event", err)
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !skipDirs[filepath.Base(event.Name)] {
			_ = fw.Add(event.Name)
		}
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	velocity := w.observe(rel)
	if err := w.store.RecordFileChange(w.projectID, rel, velocity); err != nil {
		logging.Suppress("watcher.record", err)
	}
}

// observe appends a change sample and returns the changes-per-week estimate
// over the window.
func (w *Watcher) observe(rel string) float64 {
	now := time.Now()
	cutoff := now.Add(-velocityWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	samples := w.history[rel]
	kept := samples[:0]
	for _, ts := range samples {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	w.history[rel] = kept

	weeks := velocityWindow.Hours() / (7 * 24)
	return float64(len(kept)) / weeks
}
