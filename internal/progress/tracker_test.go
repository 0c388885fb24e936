package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	fixed := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	require.Equal(t, PhaseIdle, tr.Snapshot().Phase)

	tr.Start("run-1", 1, 100)
	tr.ScanPlanned(40, 60, 3, 5)
	tr.BatchDone(20, 7)
	tr.BatchDone(20, 9)
	tr.EnrichPlanned(9)
	tr.EnrichDone(true)
	tr.EnrichDone(false)
	tr.Finish(1)

	snap := tr.Snapshot()
	require.Equal(t, "run-1", snap.RunID)
	require.Equal(t, PhaseDone, snap.Phase)
	require.Equal(t, 40, snap.Resumed)
	require.Equal(t, 60, snap.Pending)
	require.Equal(t, 2, snap.BatchesDone)
	require.Equal(t, 40, snap.Probed)
	require.Equal(t, 9, snap.Valid)
	require.Equal(t, 9, snap.Candidates)
	require.Equal(t, 1, snap.Enriched)
	require.Equal(t, 1, snap.Excluded)
	require.Equal(t, 1, snap.Records)
	require.Equal(t, fixed, snap.UpdatedAt)
}

func TestTracker_Fail(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Start("run-2", 1, 10)
	tr.Fail(errors.New("checkpoint save: disk full"))

	snap := tr.Snapshot()
	require.Equal(t, PhaseFailed, snap.Phase)
	require.Equal(t, "checkpoint save: disk full", snap.LastError)
}

func TestTracker_NilIsSafe(t *testing.T) {
	t.Parallel()

	var tr *Tracker
	tr.Start("x", 1, 2)
	tr.BatchDone(1, 1)
	tr.Fail(errors.New("boom"))
	require.Equal(t, PhaseIdle, tr.Snapshot().Phase)
}
