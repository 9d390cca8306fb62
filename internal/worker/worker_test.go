package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ravnltd/muninn/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) (*store.Store, store.ProjectRow) {
	t.Helper()
	a := store.NewLocalAdapter(":memory:", "")
	require.NoError(t, a.Init())
	t.Cleanup(func() { a.Close() })
	s := store.New(a)
	p, err := s.EnsureProject("/tmp/proj")
	require.NoError(t, err)
	return s, p
}

func TestWorkerStopsCleanly(t *testing.T) {
	s, p := newTestStore(t)
	w := New(s, p.ID)
	w.ScanInterval = 10 * time.Millisecond
	w.OutcomeInterval = 10 * time.Millisecond
	w.DistillInterval = 10 * time.Millisecond
	w.MaintainInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let a few ticks land, then stop.
	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestDrainOutcomesProcessesRemoteSessions(t *testing.T) {
	s, p := newTestStore(t)

	// A session ended elsewhere: no trace yet.
	sid, err := s.StartSession(p.ID, "remote work")
	require.NoError(t, err)
	require.NoError(t, s.EndSession(sid, "success", 2, []string{"a.go"}))

	w := New(s, p.ID)
	require.NoError(t, w.drainOutcomes(context.Background()))

	traces, err := s.RecentTraces(p.ID, 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)

	// A second drain finds nothing to do.
	require.NoError(t, w.drainOutcomes(context.Background()))
	traces, err = s.RecentTraces(p.ID, 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
}

func TestMaintenanceArchivesQuietFiles(t *testing.T) {
	s, p := newTestStore(t)
	_, err := s.UpsertFile(p.ID, "old.go", "ancient helper", 0)
	require.NoError(t, err)

	// Backdate the file well past the archive horizon.
	_, err = s.Adapter().Run("UPDATE files SET updated_at = '2020-01-01T00:00:00Z' WHERE path = 'old.go'")
	require.NoError(t, err)

	w := New(s, p.ID)
	require.NoError(t, w.runMaintenance(context.Background()))

	f, err := s.GetFile(p.ID, "old.go")
	require.NoError(t, err)
	require.True(t, f.Archived)
}
