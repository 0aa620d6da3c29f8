package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(session string, start time.Time) *RunRecord {
	return &RunRecord{
		Workflow:            WorkflowExecution,
		Session:             session,
		StartTime:           start,
		EndTime:             start.Add(5 * time.Minute),
		FinalState:          "approved",
		Outcome:             "success",
		ProducerInvocations: 3,
		ReviewerInvocations: 2,
		RevisionCycles:      1,
		StepsCompleted:      2,
		ExitCode:            0,
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".planloop", "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestRecordAndQueryRun(t *testing.T) {
	store := openTestStore(t)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := sampleRun("demo", start)
	require.NoError(t, store.RecordRun(rec))
	assert.NotEmpty(t, rec.ID, "RecordRun assigns an ID when missing")

	runs, err := store.RecentRuns("demo", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, WorkflowExecution, got.Workflow)
	assert.Equal(t, "success", got.Outcome)
	assert.Equal(t, 3, got.ProducerInvocations)
	assert.Equal(t, 2, got.StepsCompleted)
	assert.True(t, got.StartTime.Equal(start))
}

func TestRecentRuns_NewestFirstAndLimited(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordRun(sampleRun("demo", base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := store.RecentRuns("demo", 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartTime.After(runs[1].StartTime))
	assert.True(t, runs[1].StartTime.After(runs[2].StartTime))
}

func TestRecentRuns_SessionFilter(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC()
	require.NoError(t, store.RecordRun(sampleRun("alpha", base)))
	require.NoError(t, store.RecordRun(sampleRun("beta", base)))

	runs, err := store.RecentRuns("alpha", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "alpha", runs[0].Session)

	all, err := store.RecentRuns("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecordRun_DuplicateIDFails(t *testing.T) {
	store := openTestStore(t)

	rec := sampleRun("demo", time.Now().UTC())
	rec.ID = "fixed"
	require.NoError(t, store.RecordRun(rec))
	assert.Error(t, store.RecordRun(rec))
}
