// Package matchqueue selects the next pair of items to compare.
//
// The queue is a shuffle bag: every item is drawn once per cycle, and the
// single item an odd-sized cycle leaves over is carried into the next cycle
// and drawn in its final pair. A Queue is not safe for concurrent use; it
// belongs to exactly one comparison session.
package matchqueue

import (
	"errors"
	"math/rand"
	"slices"
	"time"
)

// ErrTooFewItems is returned when fewer than two distinct ids are offered.
var ErrTooFewItems = errors.New("at least two items are required for a match")

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithSeed makes the shuffle order reproducible.
func WithSeed(seed int64) Option {
	return func(q *Queue) {
		q.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // shuffle order is not security sensitive
	}
}

// Queue holds the remaining draw order for the current cycle.
type Queue struct {
	seq []string            // draw order; the tail is drawn first
	set map[string]struct{} // ids the sequence was built from
	rng *rand.Rand
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // shuffle order is not security sensitive
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Len returns the number of ids left in the current sequence.
func (q *Queue) Len() int { return len(q.seq) }

// Remaining returns a copy of the pending draw order, next draw last.
func (q *Queue) Remaining() []string { return slices.Clone(q.seq) }

// Reset drops the current sequence.
func (q *Queue) Reset() {
	q.seq = nil
	q.set = nil
}

// Next pops the next pair out of ids.
//
// If ids is not the set the queue was built from, the queue starts over.
func (q *Queue) Next(ids []string) (string, string, error) {
	ids = distinct(ids)
	if len(ids) < 2 {
		return "", "", ErrTooFewItems
	}
	if !q.sameSet(ids) {
		q.Reset()
		q.set = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			q.set[id] = struct{}{}
		}
	}

	switch len(q.seq) {
	case 0:
		q.seq = q.shuffled(ids)
	case 1:
		leftover := q.seq[0]
		fresh := q.shuffled(ids)
		q.placeLeftover(fresh, leftover)
		q.seq = append([]string{leftover}, fresh...)
	}

	n := len(q.seq)
	a, b := q.seq[n-1], q.seq[n-2]
	q.seq = q.seq[:n-2]
	return a, b, nil
}

// placeLeftover moves the leftover's own copy in fresh away from fresh[0],
// which is paired with the carried leftover at the end of the cycle, and,
// when there is room, out of the tail pair drawn right away.
func (q *Queue) placeLeftover(fresh []string, leftover string) {
	pos := slices.Index(fresh, leftover)
	n := len(fresh)
	switch {
	case pos < 0:
		return
	case n >= 4 && (pos == 0 || pos >= n-2):
		target := 1 + q.rng.Intn(n-3)
		fresh[pos], fresh[target] = fresh[target], fresh[pos]
	case pos == 0:
		fresh[0], fresh[1] = fresh[1], fresh[0]
	}
}

func (q *Queue) shuffled(ids []string) []string {
	out := slices.Clone(ids)
	q.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (q *Queue) sameSet(ids []string) bool {
	if q.set == nil || len(q.set) != len(ids) {
		return false
	}
	for _, id := range ids {
		if _, ok := q.set[id]; !ok {
			return false
		}
	}
	return true
}

// distinct keeps the first occurrence of every id.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
