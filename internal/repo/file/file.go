// Package file stores the alert history as a JSON object on disk,
// {"example.com": "2025-08-18"}, rewriting it atomically on every save.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hamed0406/certwatch/internal/repo"
)

type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a store writing to path. The parent directory is created if
// needed.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) (repo.History, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(repo.History), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	h := make(repo.History)
	if len(b) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", s.path, err)
	}
	return h, nil
}

// Save writes h to a temp file in the same directory, syncs it and renames
// it over the previous file.
func (s *Store) Save(ctx context.Context, h repo.History) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

var _ repo.AlertHistory = (*Store)(nil)
