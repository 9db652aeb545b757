package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	st, err := NewFileStore(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
	return st
}

func TestGetMissingReturnsNil(t *testing.T) {
	st := newTestStore(t)

	snap, err := st.Get("never-seen")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestPutThenGet(t *testing.T) {
	st := newTestStore(t)
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	require.NoError(t, st.Put("example", "some content", ts))

	snap, err := st.Get("example")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "example", snap.SiteID)
	assert.Equal(t, "some content", snap.Text)
	assert.Equal(t, ts, snap.CapturedAt)
}

func TestPutOverwrites(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Put("example", "old", time.Now()))
	require.NoError(t, st.Put("example", "new", time.Now()))

	snap, err := st.Get("example")
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Text)

	// Overwrite keeps exactly one visible record per site.
	entries, err := os.ReadDir(st.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInterruptedPutLeavesOldSnapshot(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put("example", "committed", time.Now()))

	// Simulate a crash between staging and rename: a stale temp file
	// is left behind but the snapshot file is untouched.
	stale, err := os.CreateTemp(st.dir, ".snapshot-*")
	require.NoError(t, err)
	_, err = stale.WriteString("half-written garbage")
	require.NoError(t, err)
	require.NoError(t, stale.Close())

	snap, err := st.Get("example")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "committed", snap.Text)
}

func TestDistinctSitesDoNotCollide(t *testing.T) {
	st := newTestStore(t)

	// Both names sanitize to the same base; the digest keeps them apart.
	require.NoError(t, st.Put("サイト", "japanese site", time.Now()))
	require.NoError(t, st.Put("ページ", "japanese page", time.Now()))

	a, err := st.Get("サイト")
	require.NoError(t, err)
	b, err := st.Get("ページ")
	require.NoError(t, err)

	assert.Equal(t, "japanese site", a.Text)
	assert.Equal(t, "japanese page", b.Text)
}

func TestGetCorruptFileReturnsStoreError(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put("example", "fine", time.Now()))

	require.NoError(t, os.WriteFile(st.path("example"), []byte("{broken"), 0o644))

	_, err := st.Get("example")
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "decode", se.Op)
	assert.Equal(t, "example", se.SiteID)
}
