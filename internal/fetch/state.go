package fetch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// IdentityState tracks the last-successful identity per site across
// runs. It is runtime state kept apart from the immutable site
// configuration, persisted as a YAML sidecar in the data dir so a new
// process starts from the previous process's known-good identities.
type IdentityState struct {
	path string

	mu   sync.Mutex
	last map[string]string
}

// LoadIdentityState reads the sidecar at path. A missing file is the
// normal first-run condition and yields empty state. A corrupt file is
// logged and discarded rather than aborting the run; the only cost of
// lost state is extra fetch attempts.
func LoadIdentityState(path string) (*IdentityState, error) {
	s := &IdentityState{path: path, last: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read identity state")
	}

	if err := yaml.Unmarshal(data, &s.last); err != nil {
		zap.L().Warn("fetch: identity state corrupt, starting fresh",
			zap.String("path", path),
			zap.Error(err),
		)
		s.last = make(map[string]string)
	}
	if s.last == nil {
		s.last = make(map[string]string)
	}

	return s, nil
}

// Last returns the last-successful identity for a site, or "".
func (s *IdentityState) Last(siteID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[siteID]
}

// Record stores the identity accepted for a site.
func (s *IdentityState) Record(siteID, identity string) {
	if identity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[siteID] = identity
}

// Save writes the state atomically: staged to a temp file in the same
// directory, then renamed over the previous file.
func (s *IdentityState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(s.last)
	if err != nil {
		return eris.Wrap(err, "fetch: encode identity state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "fetch: create state dir")
	}

	tmp, err := os.CreateTemp(dir, ".identities-*.yaml")
	if err != nil {
		return eris.Wrap(err, "fetch: stage identity state")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "fetch: write identity state")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "fetch: close identity state")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "fetch: replace identity state")
	}

	return nil
}
