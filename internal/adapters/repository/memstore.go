package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/pkg/metrics"
)

// MemoryStore keeps a primary copy and a read replica that applies the
// primary's writes after a configurable lag. Writes always hit the primary.
// Reads without a token are served by the replica and can be stale; reads
// with a token are served by the replica only once it has applied that
// token's write, and by the primary otherwise.
type MemoryStore struct {
	mu      sync.Mutex
	primary *dataset
	replica *dataset
	pending []mutation // committed on the primary, not yet on the replica
	lag     time.Duration
	now     func() time.Time
	closed  bool
}

type partition struct {
	ratings     map[string]model.Rating
	collections map[string]model.Collection
}

type dataset struct {
	lsn    uint64
	owners map[string]*partition
}

type mutation struct {
	lsn   uint64
	at    time.Time
	apply func(*dataset)
}

func newDataset() *dataset {
	return &dataset{owners: make(map[string]*partition)}
}

func (d *dataset) partition(owner string) *partition {
	p, ok := d.owners[owner]
	if !ok {
		p = &partition{
			ratings:     make(map[string]model.Rating),
			collections: make(map[string]model.Collection),
		}
		d.owners[owner] = p
	}
	return p
}

func (d *dataset) rating(owner, id string) (model.Rating, bool) {
	p, ok := d.owners[owner]
	if !ok {
		return model.Rating{}, false
	}
	r, ok := p.ratings[id]
	return r, ok
}

func (d *dataset) collection(owner, id string) (model.Collection, bool) {
	p, ok := d.owners[owner]
	if !ok {
		return model.Collection{}, false
	}
	c, ok := p.collections[id]
	return c, ok
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		primary: newDataset(),
		replica: newDataset(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// commit applies fn to the primary and schedules it for the replica.
// Must be called with s.mu held.
func (s *MemoryStore) commit(fn func(*dataset)) Token {
	lsn := s.primary.lsn + 1
	apply := func(d *dataset) {
		fn(d)
		d.lsn = lsn
	}
	apply(s.primary)
	s.pending = append(s.pending, mutation{lsn: lsn, at: s.now(), apply: apply})
	s.replicate()
	return NewToken(lsn)
}

// replicate applies every pending write older than the lag.
// Must be called with s.mu held.
func (s *MemoryStore) replicate() {
	now := s.now()
	n := 0
	for _, m := range s.pending {
		if now.Sub(m.at) < s.lag {
			break
		}
		m.apply(s.replica)
		n++
	}
	if n > 0 {
		s.pending = append(s.pending[:0], s.pending[n:]...)
	}
	metrics.UpdateReplicaLag(len(s.pending))
}

// readView picks the copy that can serve a read carrying tok.
// Must be called with s.mu held.
func (s *MemoryStore) readView(tok Token) (*dataset, error) {
	if s.closed {
		return nil, ErrClosed
	}
	lsn, err := tok.LSN()
	if err != nil {
		return nil, err
	}
	s.replicate()
	if lsn <= s.replica.lsn {
		return s.replica, nil
	}
	return s.primary, nil
}

func (s *MemoryStore) writable(tok Token) error {
	if s.closed {
		return ErrClosed
	}
	_, err := tok.LSN()
	return err
}

// GetRating implements Store.
func (s *MemoryStore) GetRating(ctx context.Context, owner, id string, tok Token) (model.Rating, Token, error) {
	if err := ctx.Err(); err != nil {
		return model.Rating{}, tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	view, err := s.readView(tok)
	if err != nil {
		return model.Rating{}, tok, err
	}
	next := Latest(tok, NewToken(view.lsn))
	r, ok := view.rating(owner, id)
	if !ok {
		return model.Rating{}, next, ErrNotFound
	}
	return r.Clone(), next, nil
}

// QueryRatings implements Store. Results are ordered by id.
func (s *MemoryStore) QueryRatings(ctx context.Context, owner string, pred Predicate, tok Token) ([]model.Rating, Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, tok, err
	}
	if pred == nil {
		pred = All()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	view, err := s.readView(tok)
	if err != nil {
		return nil, tok, err
	}
	var out []model.Rating
	if p, ok := view.owners[owner]; ok {
		for _, r := range p.ratings {
			if pred(r) {
				out = append(out, r.Clone())
			}
		}
	}
	sortRatings(out)
	return out, Latest(tok, NewToken(view.lsn)), nil
}

// ReplaceRating implements Store.
func (s *MemoryStore) ReplaceRating(ctx context.Context, r model.Rating, tok Token) (Token, error) {
	if err := ctx.Err(); err != nil {
		return tok, err
	}
	if err := checkRating(&r); err != nil {
		return tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(tok); err != nil {
		return tok, err
	}
	if _, ok := s.primary.rating(r.OwnerID, r.ID); !ok {
		return tok, ErrNotFound
	}
	r = r.Clone()
	return s.commit(func(d *dataset) {
		d.partition(r.OwnerID).ratings[r.ID] = r.Clone()
	}), nil
}

// CreateRatingIfAbsent implements Store.
func (s *MemoryStore) CreateRatingIfAbsent(ctx context.Context, r model.Rating, tok Token) (Token, error) {
	if err := ctx.Err(); err != nil {
		return tok, err
	}
	if err := checkRating(&r); err != nil {
		return tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(tok); err != nil {
		return tok, err
	}
	if _, ok := s.primary.rating(r.OwnerID, r.ID); ok {
		return Latest(tok, NewToken(s.primary.lsn)), nil
	}
	r = r.Clone()
	return s.commit(func(d *dataset) {
		d.partition(r.OwnerID).ratings[r.ID] = r.Clone()
	}), nil
}

// DeleteRatings implements Store.
func (s *MemoryStore) DeleteRatings(ctx context.Context, owner string, pred Predicate, tok Token) (int, Token, error) {
	if err := ctx.Err(); err != nil {
		return 0, tok, err
	}
	if pred == nil {
		pred = All()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(tok); err != nil {
		return 0, tok, err
	}
	var ids []string
	if p, ok := s.primary.owners[owner]; ok {
		for id, r := range p.ratings {
			if pred(r) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return 0, Latest(tok, NewToken(s.primary.lsn)), nil
	}
	next := s.commit(func(d *dataset) {
		p := d.partition(owner)
		for _, id := range ids {
			delete(p.ratings, id)
		}
	})
	return len(ids), next, nil
}

// GetCollection implements Store.
func (s *MemoryStore) GetCollection(ctx context.Context, owner, id string, tok Token) (model.Collection, Token, error) {
	if err := ctx.Err(); err != nil {
		return model.Collection{}, tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	view, err := s.readView(tok)
	if err != nil {
		return model.Collection{}, tok, err
	}
	next := Latest(tok, NewToken(view.lsn))
	c, ok := view.collection(owner, id)
	if !ok {
		return model.Collection{}, next, ErrNotFound
	}
	return c.Clone(), next, nil
}

// ListCollections implements Store. Results are ordered by id.
func (s *MemoryStore) ListCollections(ctx context.Context, owner string, tok Token) ([]model.Collection, Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	view, err := s.readView(tok)
	if err != nil {
		return nil, tok, err
	}
	var out []model.Collection
	if p, ok := view.owners[owner]; ok {
		for _, c := range p.collections {
			out = append(out, c.Clone())
		}
	}
	sortCollections(out)
	return out, Latest(tok, NewToken(view.lsn)), nil
}

// PutCollection implements Store.
func (s *MemoryStore) PutCollection(ctx context.Context, c model.Collection, tok Token) (Token, error) {
	if err := ctx.Err(); err != nil {
		return tok, err
	}
	if err := checkCollection(&c); err != nil {
		return tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(tok); err != nil {
		return tok, err
	}
	c = c.Clone()
	return s.commit(func(d *dataset) {
		d.partition(c.OwnerID).collections[c.ID] = c.Clone()
	}), nil
}

// DeleteCollection implements Store.
func (s *MemoryStore) DeleteCollection(ctx context.Context, owner, id string, tok Token) (Token, error) {
	if err := ctx.Err(); err != nil {
		return tok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(tok); err != nil {
		return tok, err
	}
	if _, ok := s.primary.collection(owner, id); !ok {
		return tok, ErrNotFound
	}
	return s.commit(func(d *dataset) {
		delete(d.partition(owner).collections, id)
	}), nil
}

// Stats implements Store. Counts come from the primary.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Stats{}, ErrClosed
	}
	st := Stats{LSN: s.primary.lsn}
	for _, p := range s.primary.owners {
		st.Ratings += len(p.ratings)
		st.Collections += len(p.collections)
	}
	return st, nil
}

// Close drops both copies.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.primary, s.replica, s.pending = newDataset(), newDataset(), nil
	return nil
}
