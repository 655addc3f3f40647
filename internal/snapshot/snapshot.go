// Package snapshot is the persistence collaborator: it stores full document
// encodings as files, one per key, over a pluggable filesystem. Writes are
// atomic — content goes to a temp file first, then a rename — so a crashed
// save never leaves a truncated snapshot behind.
package snapshot

import (
	"fmt"
	"net/url"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/mergedoc/mergedoc/api"
)

const suffix = ".snap"

type Store struct {
	fs  billy.Filesystem
	dir string
}

// NewStore creates a snapshot store rooted at dir on the given filesystem,
// creating the directory if needed.
func NewStore(fs billy.Filesystem, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

func (s *Store) path(key string) string {
	// Escape so arbitrary host keys cannot traverse out of the directory.
	return s.fs.Join(s.dir, url.PathEscape(key)+suffix)
}

// Save writes the snapshot bytes for key atomically.
func (s *Store) Save(key string, data []byte) error {
	tmp, err := util.TempFile(s.fs, s.dir, ".snap-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write snapshot %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close snapshot %q: %w", key, err)
	}
	if err := s.fs.Rename(tmpName, s.path(key)); err != nil {
		_ = s.fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename snapshot %q: %w", key, err)
	}
	return nil
}

// Load reads the snapshot bytes for key. A missing snapshot is
// api.ErrNotFound.
func (s *Store) Load(key string) ([]byte, error) {
	b, err := util.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %q: %w", key, api.ErrNotFound)
		}
		return nil, fmt.Errorf("read snapshot %q: %w", key, err)
	}
	return b, nil
}

// Remove deletes the snapshot for key, if present.
func (s *Store) Remove(key string) error {
	err := s.fs.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot %q: %w", key, err)
	}
	return nil
}
