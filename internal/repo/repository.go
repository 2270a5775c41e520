package repo

import (
	"context"

	"github.com/hamed0406/certwatch/internal/domain"
)

// History maps a target to the last calendar date (domain.DateLayout, UTC)
// an expiry alert was sent for it.
type History map[domain.Target]string

// Clone returns an independent copy.
func (h History) Clone() History {
	out := make(History, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// AlertHistory is the durable port for the alert history. Load on a store
// that has never been written returns an empty History and no error. Save
// replaces the stored history as a whole and must be atomic: a concurrent
// Load sees either the old or the new content.
type AlertHistory interface {
	Load(ctx context.Context) (History, error)
	Save(ctx context.Context, h History) error
}
