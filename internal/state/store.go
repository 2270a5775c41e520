// Package state holds the most recently published Snapshot. Readers never
// block and never observe a partially written cycle.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/hamed0406/certwatch/internal/domain"
)

type Store struct {
	current atomic.Pointer[domain.Snapshot]
	ready   chan struct{}
	once    sync.Once
}

func New() *Store {
	return &Store{ready: make(chan struct{})}
}

// Publish replaces the current snapshot. s must not be modified afterwards.
func (st *Store) Publish(s *domain.Snapshot) {
	st.current.Store(s)
	st.once.Do(func() { close(st.ready) })
}

// Current returns the latest snapshot, or nil before the first publication.
func (st *Store) Current() *domain.Snapshot {
	return st.current.Load()
}

// Ready is closed once the first snapshot has been published.
func (st *Store) Ready() <-chan struct{} {
	return st.ready
}

// IsReady reports whether a snapshot has been published.
func (st *Store) IsReady() bool {
	return st.current.Load() != nil
}
