package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/model"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.JournalConfig{Driver: "none"}, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, st)

	dir := t.TempDir()
	st, err = Open(ctx, config.JournalConfig{Driver: "sqlite"}, dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)
	assert.FileExists(t, filepath.Join(dir, "journal.db"))

	_, err = Open(ctx, config.JournalConfig{Driver: "bogus"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestNoopStillIssuesRunIDs(t *testing.T) {
	run, err := Noop{}.CreateRun(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())
}

func TestTally(t *testing.T) {
	outcomes := []model.RunOutcome{
		{Status: model.StatusChanged},
		{Status: model.StatusUnchanged},
		{Status: model.StatusBaseline},
		{Status: model.StatusFailed},
		{Status: model.StatusChanged},
	}

	sites, changed, failed := tally(outcomes)
	assert.Equal(t, 5, sites)
	assert.Equal(t, 2, changed)
	assert.Equal(t, 1, failed)
}
