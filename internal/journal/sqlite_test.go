package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pagewatch/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestNewSQLite_InvalidPath(t *testing.T) {
	_, err := NewSQLite("/nonexistent/dir/subdir/journal.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal")
}

func TestNewSQLite_WALMode(t *testing.T) {
	st := newTestSQLite(t)

	var mode string
	require.NoError(t, st.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	outcomes := []model.RunOutcome{
		{
			SiteID:   "example",
			Status:   model.StatusChanged,
			Stage:    model.StageNotifying,
			Diff:     &model.DiffResult{SiteID: "example", Added: 2, Removed: 1, Significant: true},
			Duration: 1500 * time.Millisecond,
		},
		{
			SiteID:   "broken",
			Status:   model.StatusFailed,
			Stage:    model.StageFetching,
			Err:      "fetch broken: exhausted 3 attempt(s): status 403",
			Duration: 30 * time.Second,
		},
	}
	for _, o := range outcomes {
		require.NoError(t, st.RecordResult(ctx, run.ID, o))
	}
	require.NoError(t, st.FinishRun(ctx, run.ID, outcomes))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Sites)
	assert.Equal(t, 1, runs[0].Changed)
	assert.Equal(t, 1, runs[0].Failed)
	assert.NotNil(t, runs[0].FinishedAt)

	results, err := st.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := make(map[string]SiteResult, len(results))
	for _, r := range results {
		byID[r.SiteID] = r
	}

	changed := byID["example"]
	assert.Equal(t, run.ID, changed.RunID)
	assert.Equal(t, model.StatusChanged, changed.Status)
	assert.Equal(t, model.StageNotifying, changed.Stage)
	assert.Equal(t, 2, changed.Added)
	assert.Equal(t, 1, changed.Removed)
	assert.Equal(t, int64(1500), changed.DurationMS)
	assert.Empty(t, changed.Error)

	failed := byID["broken"]
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Equal(t, model.StageFetching, failed.Stage)
	assert.Contains(t, failed.Error, "exhausted")
	assert.Equal(t, int64(30000), failed.DurationMS)
}

func TestSQLite_FinishRunNotFound(t *testing.T) {
	st := newTestSQLite(t)

	err := st.FinishRun(context.Background(), "missing-run", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRunsLimit(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateRun(ctx)
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_ListResultsUnknownRun(t *testing.T) {
	st := newTestSQLite(t)

	results, err := st.ListResults(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Migrate(context.Background()))
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() }) //nolint:errcheck

	// Tables already exist from the first migration.
	_, err = s2.CreateRun(context.Background())
	require.NoError(t, err)
}
