package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/certwatch/internal/repo"
)

// Store keeps the alert history in process memory. It does not survive a
// restart; use it for tests and throwaway runs.
type Store struct {
	mu    sync.RWMutex
	h     repo.History
	saves int
}

func New() *Store {
	return &Store{h: make(repo.History)}
}

func (m *Store) Load(ctx context.Context) (repo.History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.h.Clone(), nil
}

func (m *Store) Save(ctx context.Context, h repo.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.h = h.Clone()
	m.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (m *Store) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ repo.AlertHistory = (*Store)(nil)
