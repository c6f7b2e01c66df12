// Package dedupe remembers which outcome submissions were already applied.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen outcome ids per scope so a resubmitted outcome is
// applied at most once. A scope is usually a comparison session.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded in scope and
	// records it when it was not. The check and the record are atomic.
	SeenAndRecord(ctx context.Context, scope, id string) bool

	// Unrecord removes id from scope so the outcome can be submitted again.
	// Used when the outcome was recorded but applying it failed.
	Unrecord(ctx context.Context, scope, id string)

	// Forget drops every id recorded in scope and returns how many went.
	Forget(ctx context.Context, scope string) int

	Size() int64
}

type key struct {
	scope string
	id    string
}

// inMemoryDeduper keeps keys in insertion order and, when bounded, evicts
// the oldest key first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	order   *list.List                         // oldest at the front
	byScope map[string]map[string]*list.Element // scope -> id -> element
	maxSize int                                // <= 0 means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.order = list.New()
	d.byScope = make(map[string]map[string]*list.Element)

	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, scope, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.byScope[scope]
	if _, ok := ids[id]; ok {
		return true
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}

	if ids == nil {
		ids = make(map[string]*list.Element)
		d.byScope[scope] = ids
	}
	ids[id] = d.order.PushBack(key{scope: scope, id: id})
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, scope, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.byScope[scope]
	el, ok := ids[id]
	if !ok {
		return
	}
	d.remove(el)
}

func (d *inMemoryDeduper) Forget(ctx context.Context, scope string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.byScope[scope]
	n := len(ids)
	for _, el := range ids {
		d.remove(el)
	}
	return n
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if el := d.order.Front(); el != nil {
		d.remove(el)
	}
}

// remove must be called with d.mu held.
func (d *inMemoryDeduper) remove(el *list.Element) {
	k := d.order.Remove(el).(key)
	ids := d.byScope[k.scope]
	delete(ids, k.id)
	if len(ids) == 0 {
		delete(d.byScope, k.scope)
	}
	d.size.Add(-1)
}

// Size returns the current number of recorded ids across all scopes.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
