package service

import (
	"sync"
	"time"

	"github.com/okian/songsort/internal/domain/matchqueue"
	"github.com/okian/songsort/internal/domain/model"
)

// Session is one user's run of comparisons over a collection. It owns its
// match queue and at most one outstanding pair.
type Session struct {
	id           string
	owner        string
	collectionID string
	scope        *Scope
	startedAt    time.Time

	mu          sync.Mutex
	queue       *matchqueue.Queue
	outstanding *[2]string
	lastActive  time.Time
	matches     int
}

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	CollectionID string    `json:"collection_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActive   time.Time `json:"last_active"`
	Matches      int       `json:"matches"`
}

// Pair is the match a session is waiting on.
type Pair struct {
	SessionID string       `json:"session_id"`
	A         model.Rating `json:"a"`
	B         model.Rating `json:"b"`
}

// Outcome reports which item of a pair won. OutcomeID is an optional
// client-chosen idempotency key, unique within the session.
type Outcome struct {
	WinnerID  string `json:"winner_id" validate:"required,nefield=LoserID"`
	LoserID   string `json:"loser_id" validate:"required"`
	OutcomeID string `json:"outcome_id,omitempty" validate:"omitempty,max=128"`
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the owner the session belongs to.
func (s *Session) Owner() string { return s.owner }

// CollectionID returns the collection being ranked.
func (s *Session) CollectionID() string { return s.collectionID }

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:           s.id,
		OwnerID:      s.owner,
		CollectionID: s.collectionID,
		StartedAt:    s.startedAt,
		LastActive:   s.lastActive,
		Matches:      s.matches,
	}
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// sessions is the service's session registry.
type sessions struct {
	mu sync.RWMutex
	m  map[string]*Session
}

func (r *sessions) add(s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[string]*Session)
	}
	r.m[s.id] = s
	return len(r.m)
}

func (r *sessions) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	return s, ok
}

func (r *sessions) remove(id string) (*Session, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	delete(r.m, id)
	return s, len(r.m), ok
}

// match returns every session accepted by keep.
func (r *sessions) match(keep func(*Session) bool) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.m {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (r *sessions) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
