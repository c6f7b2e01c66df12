// Package journal keeps a bounded, newest-first history of applied matches
// per collection.
package journal

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/pkg/metrics"
)

// Default journal configuration constants.
const (
	defaultPerCollection = 200
)

// ErrIncomplete is returned for a match missing its owner or collection.
var ErrIncomplete = errors.New("match has no owner or collection")

// Option applies a configuration option to the Journal.
type Option func(*Journal)

// WithPerCollection caps how many matches are kept for each collection.
func WithPerCollection(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.limit = n
		}
	}
}

type key struct{ owner, collection string }

// Journal is an in-memory match history safe for concurrent use.
type Journal struct {
	mu      sync.RWMutex
	limit   int
	entries map[key][]model.Match // oldest first
	total   int
}

// New creates an empty journal.
func New(opts ...Option) *Journal {
	j := &Journal{
		limit:   defaultPerCollection,
		entries: make(map[key][]model.Match),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append records m, evicting the collection's oldest match when full.
func (j *Journal) Append(_ context.Context, m model.Match) error { //nolint:gocritic // hugeParam: stored by value
	if m.OwnerID == "" || m.CollectionID == "" {
		return ErrIncomplete
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	k := key{m.OwnerID, m.CollectionID}
	list := append(j.entries[k], m)
	if len(list) > j.limit {
		list = slices.Delete(list, 0, len(list)-j.limit)
	} else {
		j.total++
	}
	j.entries[k] = list
	metrics.UpdateJournalRetained(j.total)
	return nil
}

// Recent returns up to limit matches of the collection, newest first.
// A limit <= 0 returns everything retained.
func (j *Journal) Recent(owner, collectionID string, limit int) []model.Match {
	j.mu.RLock()
	defer j.mu.RUnlock()

	list := j.entries[key{owner, collectionID}]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]model.Match, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		out = append(out, list[i])
	}
	return out
}

// Drop forgets the history of a collection and returns how many matches
// were removed.
func (j *Journal) Drop(owner, collectionID string) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	k := key{owner, collectionID}
	n := len(j.entries[k])
	delete(j.entries, k)
	j.total -= n
	metrics.UpdateJournalRetained(j.total)
	return n
}

// Len returns the number of matches retained across all collections.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.total
}
