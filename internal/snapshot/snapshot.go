// Package snapshot persists the last-known normalized text per site.
package snapshot

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pagewatch/internal/model"
)

// Store persists exactly one snapshot per site.
type Store interface {
	// Get returns the stored snapshot for a site, or nil when the site
	// has none yet. A missing snapshot is the normal first-run
	// condition, not an error.
	Get(siteID string) (*model.Snapshot, error)
	// Put replaces the site's snapshot atomically. A crash mid-write
	// must leave the previous snapshot intact.
	Put(siteID, text string, capturedAt time.Time) error
}

// StoreError wraps a snapshot read or write failure.
type StoreError struct {
	Op     string
	SiteID string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.SiteID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// FileStore keeps one JSON file per site under a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "snapshot: create dir")
	}
	return &FileStore{dir: dir}, nil
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// path maps a site id to a stable file name. Ids may contain anything
// (Japanese names, URLs), so non-portable runes are replaced and a
// short digest keeps distinct ids from colliding after replacement.
func (s *FileStore) path(siteID string) string {
	name := unsafePathChars.ReplaceAllString(siteID, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	sum := sha256.Sum256([]byte(siteID))
	return filepath.Join(s.dir, fmt.Sprintf("%s-%x.json", name, sum[:4]))
}

func (s *FileStore) Get(siteID string) (*model.Snapshot, error) {
	data, err := os.ReadFile(s.path(siteID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "read", SiteID: siteID, Err: err}
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &StoreError{Op: "decode", SiteID: siteID, Err: err}
	}

	return &snap, nil
}

func (s *FileStore) Put(siteID, text string, capturedAt time.Time) error {
	snap := model.Snapshot{
		SiteID:     siteID,
		Text:       text,
		CapturedAt: capturedAt.UTC(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &StoreError{Op: "encode", SiteID: siteID, Err: err}
	}

	// Stage in the same directory so the rename is a same-filesystem
	// atomic replace.
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return &StoreError{Op: "stage", SiteID: siteID, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "write", SiteID: siteID, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "sync", SiteID: siteID, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "close", SiteID: siteID, Err: err}
	}

	if err := os.Rename(tmpName, s.path(siteID)); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "replace", SiteID: siteID, Err: err}
	}

	return nil
}
