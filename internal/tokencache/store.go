package tokencache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes the cache document across an ordered list of
// candidate filesystem paths. Reads resolve to the first path that
// exists; writes always go to the first (primary) path.
type Store struct {
	candidates []string
}

// NewStore creates a store over the given candidate paths. At least one
// path is required; the first is the primary write target.
func NewStore(candidates ...string) *Store {
	if len(candidates) == 0 {
		panic("tokencache: at least one candidate path required")
	}
	return &Store{candidates: candidates}
}

// DefaultCandidates returns the standard cache locations: the tool's own
// cache first, then the Azure CLI MSAL cache for interop with caches
// populated by compatible tooling. An override, if non-empty, becomes the
// primary path ahead of both.
func DefaultCandidates(override string) []string {
	var candidates []string
	if override != "" {
		candidates = append(candidates, override)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".graph365", "msal_cache.json"),
			filepath.Join(home, ".azure", "msal_token_cache.json"),
		)
	}
	if len(candidates) == 0 {
		// No home directory; fall back to the working directory.
		candidates = append(candidates, "msal_cache.json")
	}
	return candidates
}

// Path returns the read path: the first candidate that exists, or the
// primary candidate when none do.
func (s *Store) Path() string {
	for _, p := range s.candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return s.candidates[0]
}

// PrimaryPath returns the write target.
func (s *Store) PrimaryPath() string {
	return s.candidates[0]
}

// Load reads the cache document from the resolved path. A missing,
// unreadable or unparseable cache yields nil: a corrupt cache is a
// normal first-run condition that forces re-bootstrap, not an error.
func (s *Store) Load() *Contract {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil
	}

	var c Contract
	if err := json.Unmarshal(data, &c); err != nil {
		slog.Debug("ignoring unparseable credential cache", "path", s.Path(), "error", err)
		return nil
	}

	c.Normalize()
	return &c
}

// Save writes the full document to the primary path as an atomic
// whole-document replacement (write-temp-then-rename), guarded by a lock
// file against overlapping invocations.
func (s *Store) Save(c *Contract) error {
	target := s.PrimaryPath()

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	lock, err := acquireFileLock(target)
	if err != nil {
		return fmt.Errorf("failed to lock credential cache: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			slog.Warn("failed to release cache lock", "error", releaseErr)
		}
	}()

	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential cache: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace credential cache: %w", err)
	}

	return nil
}
